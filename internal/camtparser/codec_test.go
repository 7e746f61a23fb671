package camtparser

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuleva/camt-reconciler/internal/logging"
	"tuleva/camt-reconciler/internal/models"
	"tuleva/camt-reconciler/internal/parsererror"
)

const testIBAN = "EE382200221020145685"

func creditEntry(amount, remittance string) string {
	return fmt.Sprintf(`<Ntry>
        <NtryRef>REF-%s</NtryRef>
        <Amt Ccy="EUR">%s</Amt>
        <CdtDbtInd>CRDT</CdtDbtInd>
        <Sts>BOOK</Sts>
        <BookgDt><Dt>2023-01-15</Dt></BookgDt>
        <ValDt><Dt>2023-01-15</Dt></ValDt>
        <AcctSvcrRef>SVC-1</AcctSvcrRef>
        <BkTxCd><Domn><Cd>PMNT</Cd><Fmly><Cd>RCDT</Cd><SubFmlyCd>ESCT</SubFmlyCd></Fmly></Domn></BkTxCd>
        <NtryDtls><TxDtls>
          <Refs><EndToEndId>E2E-1</EndToEndId></Refs>
          <RltdPties>
            <Dbtr><Nm>Jaan Tamm</Nm><Id><PrvtId><Othr><Id>37605030299</Id></Othr></PrvtId></Id></Dbtr>
            <DbtrAcct><Id><IBAN>EE471000001020145685</IBAN></Id></DbtrAcct>
          </RltdPties>
          <RmtInf><Ustrd>%s</Ustrd></RmtInf>
        </TxDtls></NtryDtls>
      </Ntry>`, amount, amount, remittance)
}

func statementXML(msgID string, entries ...string) string {
	return documentXML("camt.053.001.02", "BkToCstmrStmt", "Stmt", msgID, strings.Join(entries, "\n"))
}

func documentXML(nsName, group, block, msgID, entries string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:%s">
  <%s>
    <GrpHdr><MsgId>%s</MsgId><CreDtTm>2023-01-15T10:00:00+02:00</CreDtTm></GrpHdr>
    <%s>
      <Id>STMT-1</Id>
      <ElctrncSeqNb>7</ElctrncSeqNb>
      <FrToDt><FrDtTm>2023-01-15T00:00:00+02:00</FrDtTm><ToDtTm>2023-01-15T23:59:59+02:00</ToDtTm></FrToDt>
      <Acct><Id><IBAN>%s</IBAN></Id><Ccy>EUR</Ccy></Acct>
      %s
    </%s>
  </%s>
</Document>`, nsName, group, msgID, block, testIBAN, entries, block, group)
}

func newTestCodec() *Codec {
	return NewCodec(logging.NewMockLogger(), nil)
}

func TestCodec_Decode_Statement(t *testing.T) {
	payload := statementXML("M100", creditEntry("100.00", "Pension 37605030299"))

	msg, err := newTestCodec().Decode([]byte(payload), models.Camt053)
	require.NoError(t, err)

	assert.Equal(t, models.Camt053, msg.Type)
	assert.Equal(t, "001.02", msg.Version)
	assert.Equal(t, "M100", msg.MessageID)
	assert.Equal(t, "STMT-1", msg.StatementID)
	assert.Equal(t, testIBAN, msg.AccountIBAN)
	assert.Equal(t, "EUR", msg.AccountCurrency)
	assert.Equal(t, int64(7), msg.SequenceNumber)
	assert.Equal(t, 8, msg.CreatedAt.UTC().Hour())
	assert.False(t, msg.PeriodFrom.IsZero())
	assert.Empty(t, msg.EntryErrors)
	require.Len(t, msg.Entries, 1)

	e := msg.Entries[0]
	assert.Equal(t, 1, e.Index)
	assert.Equal(t, "REF-100.00", e.ExternalID)
	assert.True(t, decimal.RequireFromString("100").Equal(e.Amount))
	assert.Equal(t, "EUR", e.Currency)
	assert.True(t, e.IsCredit())
	assert.False(t, e.Reversal)
	assert.Equal(t, "BOOK", e.Status)
	assert.Equal(t, "2023-01-15", e.ValueDate.Format("2006-01-02"))
	assert.Equal(t, []string{"Pension 37605030299"}, e.Unstructured)
	assert.Equal(t, "E2E-1", e.EndToEndID)
	assert.Equal(t, "ESCT", e.SubFamilyCode)
	assert.Equal(t, models.Counterparty{Name: "Jaan Tamm", IBAN: "EE471000001020145685", PersonalCode: "37605030299"}, e.Counterparty)
}

func TestCodec_Decode_PartialSuccess(t *testing.T) {
	entries := make([]string, 10)
	for i := range entries {
		entries[i] = creditEntry(fmt.Sprintf("%d.00", i+1), "contribution")
	}
	entries[4] = strings.Replace(entries[4], "<CdtDbtInd>CRDT</CdtDbtInd>", "<CdtDbtInd>XXXX</CdtDbtInd>", 1)

	msg, err := newTestCodec().Decode([]byte(statementXML("M100", entries...)), models.Camt053)
	require.NoError(t, err)

	require.Len(t, msg.Entries, 9)
	require.Len(t, msg.EntryErrors, 1)

	entryErr := msg.EntryErrors[0]
	assert.Equal(t, 5, entryErr.EntryIndex)
	assert.Equal(t, "M100", entryErr.MessageID)
	assert.Equal(t, "CdtDbtInd", entryErr.Field)
	assert.True(t, entryErr.IsEntryLevel())

	indexes := make([]int, 0, len(msg.Entries))
	for _, e := range msg.Entries {
		indexes = append(indexes, e.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 6, 7, 8, 9, 10}, indexes)
}

func TestCodec_Decode_EntryValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(string) string
		expected string
	}{
		{"missing amount", func(s string) string { return strings.Replace(s, `<Amt Ccy="EUR">1.00</Amt>`, "", 1) }, "Amt"},
		{"bad amount", func(s string) string { return strings.Replace(s, ">1.00<", ">1,00<", 1) }, "Amt"},
		{"bad currency", func(s string) string { return strings.Replace(s, `Ccy="EUR"`, `Ccy="euro"`, 1) }, "Amt/@Ccy"},
		{"amount beyond int64 minor units", func(s string) string {
			return strings.Replace(s, ">1.00<", ">100000000000000000000.00<", 1)
		}, "Amt"},
		{"bad booking date", func(s string) string {
			return strings.Replace(s, "<BookgDt><Dt>2023-01-15</Dt></BookgDt>", "<BookgDt><Dt>15.01.2023</Dt></BookgDt>", 1)
		}, "BookgDt"},
		{"no dates", func(s string) string {
			s = strings.Replace(s, "<BookgDt><Dt>2023-01-15</Dt></BookgDt>", "", 1)
			return strings.Replace(s, "<ValDt><Dt>2023-01-15</Dt></ValDt>", "", 1)
		}, "ValDt"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			payload := statementXML("M1", tc.mutate(creditEntry("1.00", "x")))
			msg, err := newTestCodec().Decode([]byte(payload), models.Camt053)
			require.NoError(t, err)
			assert.Empty(t, msg.Entries)
			require.Len(t, msg.EntryErrors, 1)
			assert.Equal(t, tc.expected, msg.EntryErrors[0].Field)
			assert.Equal(t, 1, msg.EntryErrors[0].EntryIndex)
		})
	}
}

func TestCodec_Decode_RejectsOverflowingAmount(t *testing.T) {
	payload := statementXML("M1",
		creditEntry("100000000000000000000.00", "too large"),
		creditEntry("92233720368547758.07", "largest EUR amount"))

	msg, err := newTestCodec().Decode([]byte(payload), models.Camt053)
	require.NoError(t, err)

	require.Len(t, msg.EntryErrors, 1)
	assert.Equal(t, 1, msg.EntryErrors[0].EntryIndex)
	assert.Equal(t, "Amt", msg.EntryErrors[0].Field)
	assert.Contains(t, msg.EntryErrors[0].Error(), "out of range")

	require.Len(t, msg.Entries, 1)
	assert.Equal(t, 2, msg.Entries[0].Index)
	assert.True(t, decimal.RequireFromString("92233720368547758.07").Equal(msg.Entries[0].Amount))
}

func TestCodec_Decode_PreservesZeroAndReversalEntries(t *testing.T) {
	reversal := strings.Replace(creditEntry("5.00", "x"), "<Sts>BOOK</Sts>", "<RvslInd>true</RvslInd><Sts>BOOK</Sts>", 1)
	payload := statementXML("M1", creditEntry("0.00", "zero"), reversal)

	msg, err := newTestCodec().Decode([]byte(payload), models.Camt053)
	require.NoError(t, err)
	require.Len(t, msg.Entries, 2)
	assert.True(t, msg.Entries[0].Amount.IsZero())
	assert.True(t, msg.Entries[1].Reversal)
}

func TestCodec_Decode_ValueDateFallsBackToBookingDate(t *testing.T) {
	entry := strings.Replace(creditEntry("1.00", "x"), "<ValDt><Dt>2023-01-15</Dt></ValDt>", "", 1)
	msg, err := newTestCodec().Decode([]byte(statementXML("M1", entry)), models.Camt053)
	require.NoError(t, err)
	require.Len(t, msg.Entries, 1)
	assert.Equal(t, msg.Entries[0].BookingDate, msg.Entries[0].ValueDate)
}

func TestCodec_Decode_IntraDayReport(t *testing.T) {
	payload := documentXML("camt.052.001.02", "BkToCstmrAcctRpt", "Rpt", "R1", creditEntry("3.50", "x"))

	msg, err := newTestCodec().Decode([]byte(payload), models.MessageTypeUnknown)
	require.NoError(t, err)
	assert.Equal(t, models.Camt052, msg.Type)
	assert.Equal(t, "R1", msg.MessageID)
	assert.Len(t, msg.Entries, 1)
}

func TestCodec_Decode_MessageErrors(t *testing.T) {
	twoStatements := strings.Replace(statementXML("M1"), "</BkToCstmrStmt>",
		"<Stmt><Acct><Id><IBAN>X</IBAN></Id></Acct></Stmt></BkToCstmrStmt>", 1)

	tests := []struct {
		name    string
		payload string
		t       models.MessageType
		field   string
	}{
		{"not XML", "this is not xml", models.Camt053, "Document"},
		{"unknown namespace", `<Document xmlns="urn:example:foo"><BkToCstmrStmt/></Document>`, models.Camt053, "Document"},
		{"no namespace", `<Document><BkToCstmrStmt/></Document>`, models.Camt053, "Document"},
		{"type mismatch", statementXML("M1"), models.Camt052, "Document"},
		{"request is not a statement", `<Document xmlns="urn:iso:std:iso:20022:tech:xsd:camt.060.001.03"/>`, models.MessageTypeUnknown, "Document"},
		{"wrong group", documentXML("camt.053.001.02", "BkToCstmrAcctRpt", "Rpt", "M1", ""), models.Camt053, "BkToCstmrStmt"},
		{"missing message id", statementXML(""), models.Camt053, "GrpHdr/MsgId"},
		{"missing IBAN", strings.Replace(statementXML("M1"), testIBAN, "", 1), models.Camt053, "Stmt/Acct/Id/IBAN"},
		{"two statements", twoStatements, models.Camt053, "Stmt"},
		{"bad sequence number", strings.Replace(statementXML("M1"), "<ElctrncSeqNb>7<", "<ElctrncSeqNb>seven<", 1), models.Camt053, "Stmt/ElctrncSeqNb"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := newTestCodec().Decode([]byte(tc.payload), tc.t)
			require.Error(t, err)

			var malformed *parsererror.MalformedMessageError
			require.True(t, errors.As(err, &malformed), "got %T: %v", err, err)
			assert.Equal(t, tc.field, malformed.Field)
			assert.False(t, malformed.IsEntryLevel())
		})
	}
}

func TestCodec_Decode_UnsupportedVersion(t *testing.T) {
	payload := documentXML("camt.053.001.08", "BkToCstmrStmt", "Stmt", "M1", "")

	_, err := newTestCodec().Decode([]byte(payload), models.Camt053)
	var unsupported *parsererror.UnsupportedMessageVersionError
	require.True(t, errors.As(err, &unsupported))
	assert.Equal(t, "001.08", unsupported.Version)
	assert.Equal(t, []string{"001.02"}, unsupported.Supported)

	codec := NewCodec(logging.NewMockLogger(), []string{"001.02", "001.08"})
	_, err = codec.Decode([]byte(payload), models.Camt053)
	assert.NoError(t, err)
}

func TestCodec_Decode_Latin1Payload(t *testing.T) {
	payload := strings.Replace(statementXML("M1", creditEntry("1.00", "Makse \xd5ie")), "UTF-8", "ISO-8859-1", 1)

	msg, err := newTestCodec().Decode([]byte(payload), models.Camt053)
	require.NoError(t, err)
	require.Len(t, msg.Entries, 1)
	assert.Equal(t, []string{"Makse Õie"}, msg.Entries[0].Unstructured)
}

func TestCodec_DetectMessageType(t *testing.T) {
	msgType, version, err := newTestCodec().DetectMessageType([]byte(statementXML("M1")))
	require.NoError(t, err)
	assert.Equal(t, models.Camt053, msgType)
	assert.Equal(t, "001.02", version)

	_, _, err = newTestCodec().DetectMessageType([]byte("<Document/>"))
	assert.Error(t, err)
}

func TestCodec_Decode_LargeStatementKeepsOrder(t *testing.T) {
	entries := make([]string, 150)
	for i := range entries {
		entries[i] = creditEntry(fmt.Sprintf("%d.00", i+1), "x")
	}
	entries[120] = strings.Replace(entries[120], `Ccy="EUR"`, `Ccy="E"`, 1)

	msg, err := newTestCodec().Decode([]byte(statementXML("BIG", entries...)), models.Camt053)
	require.NoError(t, err)
	require.Len(t, msg.Entries, 149)
	require.Len(t, msg.EntryErrors, 1)
	assert.Equal(t, 121, msg.EntryErrors[0].EntryIndex)

	for i, e := range msg.Entries {
		expected := i + 1
		if i >= 120 {
			expected = i + 2
		}
		assert.Equal(t, expected, e.Index)
		assert.True(t, decimal.NewFromInt(int64(expected)).Equal(e.Amount))
	}
}
