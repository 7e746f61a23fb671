// Package parsererror defines the typed errors produced while decoding bank messages.
package parsererror

import (
	"fmt"
	"strings"
)

// MalformedMessageError reports a payload, or a single entry inside it, that
// violates the message schema: missing required element, type mismatch or an
// unknown namespace. EntryIndex is 1-based; zero means the whole message.
type MalformedMessageError struct {
	MessageID  string
	EntryIndex int
	Field      string
	Reason     string
	Err        error
}

func (e *MalformedMessageError) Error() string {
	var b strings.Builder
	b.WriteString("malformed message")
	if e.MessageID != "" {
		fmt.Fprintf(&b, " '%s'", e.MessageID)
	}
	if e.EntryIndex > 0 {
		fmt.Fprintf(&b, " entry %d", e.EntryIndex)
	}
	if e.Field != "" {
		fmt.Fprintf(&b, " field %s", e.Field)
	}
	fmt.Fprintf(&b, ": %s", e.Reason)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// IsEntryLevel reports whether the error concerns a single entry only.
func (e *MalformedMessageError) IsEntryLevel() bool {
	return e.EntryIndex > 0
}

// UnsupportedMessageVersionError reports a known message type whose schema
// version is outside the supported set.
type UnsupportedMessageVersionError struct {
	Namespace string
	Version   string
	Supported []string
}

func (e *UnsupportedMessageVersionError) Error() string {
	return fmt.Sprintf("unsupported message version %s (namespace %s), supported: %s",
		e.Version, e.Namespace, strings.Join(e.Supported, ", "))
}
