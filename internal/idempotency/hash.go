package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"tuleva/camt-reconciler/internal/models"
)

type entryErrorView struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type canonicalMessage struct {
	Message     *models.StatementMessage `json:"message"`
	EntryErrors []entryErrorView         `json:"entry_errors"`
}

// ContentHash returns the hex SHA-256 of a canonical JSON rendering of the
// decoded message. Two payloads that decode to the same message hash equally,
// whatever channel or encoding delivered them.
func ContentHash(msg *models.StatementMessage) (string, error) {
	if msg == nil {
		return "", fmt.Errorf("cannot hash a nil message")
	}

	canonical := canonicalMessage{Message: msg, EntryErrors: []entryErrorView{}}
	for _, e := range msg.EntryErrors {
		canonical.EntryErrors = append(canonical.EntryErrors, entryErrorView{
			Index: e.EntryIndex, Field: e.Field, Reason: e.Reason,
		})
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to render message for hashing: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
