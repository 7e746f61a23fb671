// Package camtparser decodes camt.052/053 bank statements into typed messages
// and encodes camt.060 statement requests.
package camtparser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/parsererror"
	"tuleva/camt-reconciler/internal/xmlutils"
)

// DefaultSupportedVersions are the schema versions delivered by the bank gateway
var DefaultSupportedVersions = []string{"001.02"}

// Codec converts between wire payloads and typed messages
type Codec struct {
	logger    logging.Logger
	versions  []string
	supported map[string]bool
	entries   *ConcurrentProcessor
}

// NewCodec creates a codec accepting the given schema versions.
// An empty list selects DefaultSupportedVersions.
func NewCodec(logger logging.Logger, supportedVersions []string) *Codec {
	if len(supportedVersions) == 0 {
		supportedVersions = DefaultSupportedVersions
	}
	supported := make(map[string]bool, len(supportedVersions))
	for _, v := range supportedVersions {
		supported[strings.TrimSpace(v)] = true
	}
	return &Codec{
		logger:    logger,
		versions:  append([]string(nil), supportedVersions...),
		supported: supported,
		entries:   NewConcurrentProcessor(logger),
	}
}

// DetectMessageType returns the message type and schema version declared by the
// root namespace of the payload.
func (c *Codec) DetectMessageType(payload []byte) (models.MessageType, string, error) {
	ns, err := xmlutils.RootNamespace(payload)
	if err != nil {
		return models.MessageTypeUnknown, "", &parsererror.MalformedMessageError{
			Field: "Document", Reason: "not well-formed XML", Err: err,
		}
	}
	t, version, ok := models.ParseNamespace(ns)
	if !ok {
		return models.MessageTypeUnknown, "", &parsererror.MalformedMessageError{
			Field: "Document", Reason: fmt.Sprintf("unknown namespace %q", ns),
		}
	}
	return t, version, nil
}

// Decode parses a camt.052 or camt.053 payload. t may be MessageTypeUnknown, in
// which case the type is taken from the namespace.
//
// Entry-level schema violations do not fail the decode: the entry is left out
// of Entries and recorded in EntryErrors with its document index.
func (c *Codec) Decode(payload []byte, t models.MessageType) (*models.StatementMessage, error) {
	nsType, version, err := c.DetectMessageType(payload)
	if err != nil {
		return nil, err
	}
	if !nsType.IsStatement() {
		return nil, &parsererror.MalformedMessageError{
			Field: "Document", Reason: fmt.Sprintf("%s is not a statement message", nsType),
		}
	}
	if t != models.MessageTypeUnknown && nsType != t {
		return nil, &parsererror.MalformedMessageError{
			Field: "Document", Reason: fmt.Sprintf("expected %s, found %s", t, nsType),
		}
	}
	if !c.supported[version] {
		return nil, &parsererror.UnsupportedMessageVersionError{
			Namespace: models.Namespace(nsType, version),
			Version:   version,
			Supported: c.versions,
		}
	}

	var document models.ISO20022Document
	if err := xmlutils.NewDecoder(bytes.NewReader(payload)).Decode(&document); err != nil {
		return nil, &parsererror.MalformedMessageError{
			Field: "Document", Reason: "failed to unmarshal XML", Err: err,
		}
	}

	msg, err := c.decodeHeader(&document, nsType, version)
	if err != nil {
		return nil, err
	}

	stmt := document.Statements()[0]
	results := c.entries.ProcessEntries(stmt.Ntry, func(index int, entry *models.Entry) EntryResult {
		raw, entryErr := decodeEntry(index, entry)
		if entryErr != nil {
			entryErr.MessageID = msg.MessageID
		}
		return EntryResult{Entry: raw, Err: entryErr}
	})

	msg.Entries = make([]models.RawEntry, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			msg.EntryErrors = append(msg.EntryErrors, r.Err)
			continue
		}
		msg.Entries = append(msg.Entries, r.Entry)
	}

	c.logger.Debug("Decoded statement message",
		logging.F(logging.FieldMessageID, msg.MessageID),
		logging.F(logging.FieldMessageType, string(msg.Type)),
		logging.F(logging.FieldCount, len(msg.Entries)),
		logging.F("entry_errors", len(msg.EntryErrors)))

	return msg, nil
}

func (c *Codec) decodeHeader(document *models.ISO20022Document, t models.MessageType, version string) (*models.StatementMessage, error) {
	groupName, blockName := "BkToCstmrStmt", "Stmt"
	present := document.BkToCstmrStmt != nil
	if t == models.Camt052 {
		groupName, blockName = "BkToCstmrAcctRpt", "Rpt"
		present = document.BkToCstmrAcctRpt != nil
	}
	if !present {
		return nil, &parsererror.MalformedMessageError{Field: groupName, Reason: "missing required element"}
	}

	header := document.Header()
	msgID := strings.TrimSpace(header.MsgID)
	if msgID == "" {
		return nil, &parsererror.MalformedMessageError{Field: "GrpHdr/MsgId", Reason: "missing required element"}
	}

	malformed := func(field, reason string, err error) error {
		return &parsererror.MalformedMessageError{MessageID: msgID, Field: field, Reason: reason, Err: err}
	}

	createdAt, err := dateutils.ParseISODateTime(header.CreDtTm)
	if err != nil {
		return nil, malformed("GrpHdr/CreDtTm", "invalid date-time", err)
	}

	statements := document.Statements()
	switch len(statements) {
	case 0:
		return nil, malformed(blockName, "missing required element", nil)
	case 1:
	default:
		return nil, malformed(blockName, fmt.Sprintf("expected exactly one %s, found %d", blockName, len(statements)), nil)
	}
	stmt := statements[0]

	iban := strings.TrimSpace(stmt.Acct.ID.IBAN)
	if iban == "" {
		return nil, malformed(blockName+"/Acct/Id/IBAN", "missing required element", nil)
	}

	seq, err := sequenceNumber(stmt)
	if err != nil {
		return nil, malformed(blockName+"/ElctrncSeqNb", "not an integer", err)
	}

	msg := &models.StatementMessage{
		Type:            t,
		Version:         version,
		MessageID:       msgID,
		StatementID:     strings.TrimSpace(stmt.ID),
		CreatedAt:       createdAt,
		AccountIBAN:     iban,
		AccountCurrency: strings.TrimSpace(stmt.Acct.Ccy),
		SequenceNumber:  seq,
	}

	if stmt.FrToDt != nil {
		if msg.PeriodFrom, err = parseOptionalDateTime(stmt.FrToDt.FrDtTm); err != nil {
			return nil, malformed(blockName+"/FrToDt/FrDtTm", "invalid date-time", err)
		}
		if msg.PeriodTo, err = parseOptionalDateTime(stmt.FrToDt.ToDtTm); err != nil {
			return nil, malformed(blockName+"/FrToDt/ToDtTm", "invalid date-time", err)
		}
	}

	return msg, nil
}

func sequenceNumber(stmt models.AccountStatement) (int64, error) {
	raw := strings.TrimSpace(stmt.ElctrncSeqNb)
	if raw == "" {
		raw = strings.TrimSpace(stmt.LglSeqNb)
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

func parseOptionalDateTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return dateutils.ParseISODateTime(s)
}
