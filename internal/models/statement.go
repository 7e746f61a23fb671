package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tuleva/camt-reconciler/internal/parsererror"
)

// MessageType identifies the ISO 20022 cash management message
type MessageType string

const (
	MessageTypeUnknown MessageType = ""
	Camt052            MessageType = "camt.052"
	Camt053            MessageType = "camt.053"
	Camt060            MessageType = "camt.060"
)

// IsStatement reports whether the type carries booked entries
func (t MessageType) IsStatement() bool {
	return t == Camt052 || t == Camt053
}

// ParseMessageType accepts "camt.053", "camt.053.001.02" or the short aliases "052"/"053"
func ParseMessageType(s string) MessageType {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "camt.")
	if len(s) >= 3 {
		s = s[:3]
	}
	switch s {
	case "052":
		return Camt052
	case "053":
		return Camt053
	case "060":
		return Camt060
	}
	return MessageTypeUnknown
}

// ParseNamespace splits an ISO 20022 namespace into its message type and schema version.
// ok is false when the namespace is not a camt namespace.
func ParseNamespace(ns string) (t MessageType, version string, ok bool) {
	ns = strings.TrimSpace(ns)
	if !strings.HasPrefix(ns, NamespacePrefix) {
		return MessageTypeUnknown, "", false
	}
	name := strings.TrimPrefix(ns, NamespacePrefix)
	parts := strings.Split(name, ".")
	if len(parts) != 4 || parts[0] != "camt" {
		return MessageTypeUnknown, "", false
	}
	t = MessageType(parts[0] + "." + parts[1])
	if t != Camt052 && t != Camt053 && t != Camt060 {
		return MessageTypeUnknown, "", false
	}
	return t, parts[2] + "." + parts[3], true
}

// Namespace builds the namespace of a message type and version
func Namespace(t MessageType, version string) string {
	return NamespacePrefix + string(t) + "." + version
}

// StatementMessage is the decoded identity and content of one camt.052/053
// message. It is never mutated after decoding; a correction arrives as a new
// StatementMessage with the same MessageID.
type StatementMessage struct {
	Type            MessageType `json:"type"`
	Version         string      `json:"version"`
	MessageID       string      `json:"message_id"`
	StatementID     string      `json:"statement_id"`
	CreatedAt       time.Time   `json:"created_at"`
	AccountIBAN     string      `json:"account_iban"`
	AccountCurrency string      `json:"account_currency"`
	PeriodFrom      time.Time   `json:"period_from"`
	PeriodTo        time.Time   `json:"period_to"`
	SequenceNumber  int64       `json:"sequence_number"`
	Entries         []RawEntry  `json:"entries"`
	// EntryErrors holds entries that failed validation, in document order.
	EntryErrors []*parsererror.MalformedMessageError `json:"-"`
}

// Supersedes reports whether m is a correction of other: same message id and
// a higher sequence number.
func (m *StatementMessage) Supersedes(other *StatementMessage) bool {
	return other != nil && m.MessageID == other.MessageID && m.SequenceNumber > other.SequenceNumber
}

// Counterparty is the other party of an entry
type Counterparty struct {
	Name         string `json:"name,omitempty"`
	IBAN         string `json:"iban,omitempty"`
	PersonalCode string `json:"personal_code,omitempty"`
}

// RawEntry is one entry exactly as decoded from the message
type RawEntry struct {
	Index               int             `json:"index"`
	ExternalID          string          `json:"external_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	CreditDebit         string          `json:"credit_debit"`
	Reversal            bool            `json:"reversal"`
	Status              string          `json:"status"`
	BookingDate         time.Time       `json:"booking_date"`
	ValueDate           time.Time       `json:"value_date"`
	Unstructured        []string        `json:"unstructured,omitempty"`
	StructuredReference string          `json:"structured_reference,omitempty"`
	EndToEndID          string          `json:"end_to_end_id,omitempty"`
	SubFamilyCode       string          `json:"sub_family_code,omitempty"`
	Counterparty        Counterparty    `json:"counterparty"`
}

// IsCredit returns true if the entry is a credit
func (e RawEntry) IsCredit() bool {
	return e.CreditDebit == TransactionTypeCredit
}
