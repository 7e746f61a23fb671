package camtparser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/models"
)

const isoTimeLayout = "15:04:05.000Z07:00"

// StatementRequest describes a camt.060 request for a statement (camt.053) or an
// intra-day report (camt.052) on one account.
type StatementRequest struct {
	MessageID   string
	CreatedAt   time.Time
	AccountIBAN string
	Requested   models.MessageType
	From        time.Time
	To          time.Time
	Location    *time.Location
}

// NewMessageID returns a fresh message id: a UUID without dashes, 32 characters
func NewMessageID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewHistoricRequest builds a request for booked statements covering the dates from..to
func NewHistoricRequest(accountIBAN string, from, to time.Time, loc *time.Location, now time.Time) StatementRequest {
	return StatementRequest{
		MessageID:   NewMessageID(),
		CreatedAt:   now,
		AccountIBAN: accountIBAN,
		Requested:   models.Camt053,
		From:        from,
		To:          to,
		Location:    loc,
	}
}

// NewIntraDayRequest builds a request for today's intra-day report in loc
func NewIntraDayRequest(accountIBAN string, loc *time.Location, now time.Time) StatementRequest {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	return StatementRequest{
		MessageID:   NewMessageID(),
		CreatedAt:   now,
		AccountIBAN: accountIBAN,
		Requested:   models.Camt052,
		From:        today,
		To:          today,
		Location:    loc,
	}
}

// RequestedMessageName returns the ReqdMsgNmId value of the request
func (r StatementRequest) RequestedMessageName() string {
	if r.Requested == models.Camt052 {
		return models.IntraDayReportMessageName
	}
	return models.HistoricMessageName
}

// Validate checks that the request can be encoded
func (r StatementRequest) Validate() error {
	var errs []error
	if strings.TrimSpace(r.MessageID) == "" {
		errs = append(errs, errors.New("message id is required"))
	}
	if strings.TrimSpace(r.AccountIBAN) == "" {
		errs = append(errs, errors.New("account IBAN is required"))
	}
	if r.Requested != models.Camt052 && r.Requested != models.Camt053 {
		errs = append(errs, fmt.Errorf("requested message type must be camt.052 or camt.053, got %q", r.Requested))
	}
	if r.From.IsZero() || r.To.IsZero() {
		errs = append(errs, errors.New("reporting period is required"))
	} else if civilDate(r.To).Before(civilDate(r.From)) {
		errs = append(errs, errors.New("reporting period ends before it starts"))
	}
	return errors.Join(errs...)
}

// Encode serializes a camt.060.001.03 account reporting request. Element order is
// fixed and all times are rendered in the request's location with a fixed
// layout, so identical requests produce identical bytes.
func (c *Codec) Encode(req StatementRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid statement request: %w", err)
	}

	loc := req.Location
	if loc == nil {
		loc = time.UTC
	}

	from := civilDate(req.From)
	to := civilDate(req.To)

	doc := models.StatementRequestDocument{}
	doc.AcctRptgReq.GrpHdr = models.GroupHeader{
		MsgID:   req.MessageID,
		CreDtTm: dateutils.FormatISODateTime(req.CreatedAt, loc),
	}

	rptg := &doc.AcctRptgReq.RptgReq
	rptg.ID = req.MessageID
	rptg.ReqdMsgNmID = req.RequestedMessageName()
	rptg.Acct.ID.IBAN = strings.TrimSpace(req.AccountIBAN)
	rptg.RptgPrd.FrToDt.FrDt = dateutils.ToISODate(from)
	rptg.RptgPrd.FrToDt.ToDt = dateutils.ToISODate(to)
	rptg.RptgPrd.FrToTm.FrTm = dateutils.StartOfDay(from, loc).Format(isoTimeLayout)
	rptg.RptgPrd.FrToTm.ToTm = dateutils.EndOfDay(to, loc).Format(isoTimeLayout)
	rptg.RptgPrd.Tp = models.QueryTypeAll

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode statement request: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode statement request: %w", err)
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}

// civilDate drops the clock and zone, keeping the calendar date as written
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
