package camtparser

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tuleva/camt-reconciler/internal/currencyutils"
	"tuleva/camt-reconciler/internal/dateutils"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/parsererror"
)

// decodeEntry validates one Ntry and converts it into a RawEntry. index is the
// 1-based position of the entry in the document.
func decodeEntry(index int, entry *models.Entry) (models.RawEntry, *parsererror.MalformedMessageError) {
	fail := func(field, reason string, err error) (models.RawEntry, *parsererror.MalformedMessageError) {
		return models.RawEntry{}, &parsererror.MalformedMessageError{
			EntryIndex: index, Field: field, Reason: reason, Err: err,
		}
	}

	if entry.Amt == nil || strings.TrimSpace(entry.Amt.Value) == "" {
		return fail("Amt", "missing required element", nil)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(entry.Amt.Value))
	if err != nil {
		return fail("Amt", "not a decimal", err)
	}

	currency := strings.TrimSpace(entry.Amt.Ccy)
	if !currencyutils.IsValidCurrencyCode(currency) {
		return fail("Amt/@Ccy", "not an ISO 4217 currency code", nil)
	}
	if !currencyutils.FitsMinorUnits(amount, currency) {
		return fail("Amt", "amount out of range", nil)
	}

	indicator := strings.TrimSpace(entry.CdtDbtInd)
	if indicator != models.TransactionTypeCredit && indicator != models.TransactionTypeDebit {
		return fail("CdtDbtInd", "expected CRDT or DBIT", nil)
	}

	bookingDate, err := parseEntryDate(entry.BookgDt)
	if err != nil {
		return fail("BookgDt", "invalid date", err)
	}
	valueDate, err := parseEntryDate(entry.ValDt)
	if err != nil {
		return fail("ValDt", "invalid date", err)
	}
	if valueDate.IsZero() {
		valueDate = bookingDate
	}
	if valueDate.IsZero() {
		return fail("ValDt", "missing value and booking date", nil)
	}

	var endToEnd string
	if id := entry.GetEndToEndID(); id != "NOTPROVIDED" {
		endToEnd = id
	}

	return models.RawEntry{
		Index:               index,
		ExternalID:          entry.GetExternalID(),
		Amount:              amount,
		Currency:            currency,
		CreditDebit:         indicator,
		Reversal:            entry.IsReversal(),
		Status:              entry.Sts.Code(),
		BookingDate:         bookingDate,
		ValueDate:           valueDate,
		Unstructured:        entry.GetUnstructuredRemittance(),
		StructuredReference: entry.GetStructuredReference(),
		EndToEndID:          endToEnd,
		SubFamilyCode:       entry.GetSubFamilyCode(),
		Counterparty:        entry.GetCounterparty(),
	}, nil
}

func parseEntryDate(d models.DateAndDateTime) (time.Time, error) {
	v := d.Value()
	if v == "" {
		return time.Time{}, nil
	}
	return dateutils.ParseISODate(v)
}
