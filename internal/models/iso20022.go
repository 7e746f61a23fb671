// Package models provides the wire structures of the ISO 20022 cash management
// messages and the internal reconciliation records derived from them.
package models

import (
	"encoding/xml"
	"strings"
)

// ISO20022Document is the root of a camt.052 or camt.053 message. Exactly one
// of the two payload groups is populated.
type ISO20022Document struct {
	XMLName          xml.Name     `xml:"Document"`
	BkToCstmrStmt    *ReportGroup `xml:"BkToCstmrStmt"`
	BkToCstmrAcctRpt *ReportGroup `xml:"BkToCstmrAcctRpt"`
}

// ReportGroup is the body of a bank-to-customer statement (Stmt) or account report (Rpt).
type ReportGroup struct {
	GrpHdr GroupHeader        `xml:"GrpHdr"`
	Stmt   []AccountStatement `xml:"Stmt"`
	Rpt    []AccountStatement `xml:"Rpt"`
}

// GroupHeader identifies the message
type GroupHeader struct {
	MsgID   string `xml:"MsgId"`
	CreDtTm string `xml:"CreDtTm"`
}

// AccountStatement is a single Stmt or Rpt block
type AccountStatement struct {
	ID           string    `xml:"Id"`
	ElctrncSeqNb string    `xml:"ElctrncSeqNb"`
	LglSeqNb     string    `xml:"LglSeqNb"`
	CreDtTm      string    `xml:"CreDtTm"`
	FrToDt       *Period   `xml:"FrToDt"`
	Acct         Account   `xml:"Acct"`
	Bal          []Balance `xml:"Bal"`
	Ntry         []Entry   `xml:"Ntry"`
}

// Period represents a from/to date-time range
type Period struct {
	FrDtTm string `xml:"FrDtTm"`
	ToDtTm string `xml:"ToDtTm"`
}

// Account represents the statement account
type Account struct {
	ID struct {
		IBAN string `xml:"IBAN"`
		Othr struct {
			ID string `xml:"Id"`
		} `xml:"Othr"`
	} `xml:"Id"`
	Ccy  string `xml:"Ccy"`
	Ownr struct {
		Nm string `xml:"Nm"`
	} `xml:"Ownr"`
}

// Balance represents a balance line
type Balance struct {
	Tp struct {
		CdOrPrtry struct {
			Cd string `xml:"Cd"`
		} `xml:"CdOrPrtry"`
	} `xml:"Tp"`
	Amt       Amount          `xml:"Amt"`
	CdtDbtInd string          `xml:"CdtDbtInd"`
	Dt        DateAndDateTime `xml:"Dt"`
}

// Amount represents a monetary amount with currency
type Amount struct {
	Value string `xml:",chardata"`
	Ccy   string `xml:"Ccy,attr"`
}

// DateAndDateTime carries either a date or a date-time
type DateAndDateTime struct {
	Dt   string `xml:"Dt"`
	DtTm string `xml:"DtTm"`
}

// Value returns whichever of the two forms is present
func (d DateAndDateTime) Value() string {
	if d.Dt != "" {
		return strings.TrimSpace(d.Dt)
	}
	return strings.TrimSpace(d.DtTm)
}

// EntryStatus supports both the 001.02 code form (<Sts>BOOK</Sts>) and the
// later nested form (<Sts><Cd>BOOK</Cd></Sts>).
type EntryStatus struct {
	Value string `xml:",chardata"`
	Cd    string `xml:"Cd"`
}

// Code returns the status code
func (s EntryStatus) Code() string {
	if c := strings.TrimSpace(s.Cd); c != "" {
		return c
	}
	return strings.TrimSpace(s.Value)
}

// Entry represents a transaction entry (Ntry)
type Entry struct {
	NtryRef      string          `xml:"NtryRef"`
	Amt          *Amount         `xml:"Amt"`
	CdtDbtInd    string          `xml:"CdtDbtInd"`
	RvslInd      string          `xml:"RvslInd"`
	Sts          EntryStatus     `xml:"Sts"`
	BookgDt      DateAndDateTime `xml:"BookgDt"`
	ValDt        DateAndDateTime `xml:"ValDt"`
	AcctSvcrRef  string          `xml:"AcctSvcrRef"`
	BkTxCd       BankTxCode      `xml:"BkTxCd"`
	NtryDtls     []EntryDetails  `xml:"NtryDtls"`
	AddtlNtryInf string          `xml:"AddtlNtryInf"`
}

// BankTxCode represents a bank transaction code
type BankTxCode struct {
	Domn struct {
		Cd   string `xml:"Cd"`
		Fmly struct {
			Cd        string `xml:"Cd"`
			SubFmlyCd string `xml:"SubFmlyCd"`
		} `xml:"Fmly"`
	} `xml:"Domn"`
	Prtry struct {
		Cd string `xml:"Cd"`
	} `xml:"Prtry"`
}

// EntryDetails groups the transaction details of an entry
type EntryDetails struct {
	TxDtls []TransactionDetails `xml:"TxDtls"`
}

// TransactionDetails represents detailed transaction information
type TransactionDetails struct {
	Refs      References     `xml:"Refs"`
	RmtInf    RemittanceInfo `xml:"RmtInf"`
	RltdPties RelatedParties `xml:"RltdPties"`
}

// References represents transaction references
type References struct {
	MsgID       string `xml:"MsgId"`
	AcctSvcrRef string `xml:"AcctSvcrRef"`
	EndToEndID  string `xml:"EndToEndId"`
	TxID        string `xml:"TxId"`
}

// RemittanceInfo holds unstructured lines and structured creditor references
type RemittanceInfo struct {
	Ustrd []string `xml:"Ustrd"`
	Strd  []struct {
		CdtrRefInf struct {
			Ref string `xml:"Ref"`
		} `xml:"CdtrRefInf"`
	} `xml:"Strd"`
}

// RelatedParties represents the counterparties of the transaction
type RelatedParties struct {
	Dbtr     Party       `xml:"Dbtr"`
	DbtrAcct CashAccount `xml:"DbtrAcct"`
	Cdtr     Party       `xml:"Cdtr"`
	CdtrAcct CashAccount `xml:"CdtrAcct"`
}

// Party is a debtor or creditor
type Party struct {
	Nm string `xml:"Nm"`
	ID struct {
		PrvtID struct {
			Othr []struct {
				ID string `xml:"Id"`
			} `xml:"Othr"`
		} `xml:"PrvtId"`
	} `xml:"Id"`
}

// CashAccount identifies a counterparty account
type CashAccount struct {
	ID struct {
		IBAN string `xml:"IBAN"`
	} `xml:"Id"`
}

// Statements returns the Stmt or Rpt blocks of the document, whichever is present
func (d *ISO20022Document) Statements() []AccountStatement {
	switch {
	case d.BkToCstmrStmt != nil:
		return d.BkToCstmrStmt.Stmt
	case d.BkToCstmrAcctRpt != nil:
		return d.BkToCstmrAcctRpt.Rpt
	}
	return nil
}

// Header returns the group header of the document
func (d *ISO20022Document) Header() GroupHeader {
	switch {
	case d.BkToCstmrStmt != nil:
		return d.BkToCstmrStmt.GrpHdr
	case d.BkToCstmrAcctRpt != nil:
		return d.BkToCstmrAcctRpt.GrpHdr
	}
	return GroupHeader{}
}

// GetFirstTxDetails returns the first transaction details if available
func (e *Entry) GetFirstTxDetails() *TransactionDetails {
	for i := range e.NtryDtls {
		if len(e.NtryDtls[i].TxDtls) > 0 {
			return &e.NtryDtls[i].TxDtls[0]
		}
	}
	return nil
}

// IsCredit returns true if the entry is a credit transaction
func (e *Entry) IsCredit() bool {
	return strings.TrimSpace(e.CdtDbtInd) == TransactionTypeCredit
}

// IsReversal returns true if the entry reverses an earlier booking
func (e *Entry) IsReversal() bool {
	return strings.EqualFold(strings.TrimSpace(e.RvslInd), "true")
}

// GetSubFamilyCode returns the bank transaction sub-family code if present
func (e *Entry) GetSubFamilyCode() string {
	return strings.TrimSpace(e.BkTxCd.Domn.Fmly.SubFmlyCd)
}

// GetUnstructuredRemittance returns all non-blank Ustrd lines across the entry's transaction details
func (e *Entry) GetUnstructuredRemittance() []string {
	var lines []string
	for _, details := range e.NtryDtls {
		for _, tx := range details.TxDtls {
			for _, ustrd := range tx.RmtInf.Ustrd {
				if s := strings.TrimSpace(ustrd); s != "" {
					lines = append(lines, s)
				}
			}
		}
	}
	return lines
}

// GetStructuredReference returns the first structured creditor reference
func (e *Entry) GetStructuredReference() string {
	for _, details := range e.NtryDtls {
		for _, tx := range details.TxDtls {
			for _, strd := range tx.RmtInf.Strd {
				if ref := strings.TrimSpace(strd.CdtrRefInf.Ref); ref != "" {
					return ref
				}
			}
		}
	}
	return ""
}

// GetExternalID returns the entry reference, falling back to the servicer reference
func (e *Entry) GetExternalID() string {
	if ref := strings.TrimSpace(e.NtryRef); ref != "" {
		return ref
	}
	return strings.TrimSpace(e.AcctSvcrRef)
}

// GetEndToEndID returns the end-to-end id of the first transaction details
func (e *Entry) GetEndToEndID() string {
	if tx := e.GetFirstTxDetails(); tx != nil {
		return strings.TrimSpace(tx.Refs.EndToEndID)
	}
	return ""
}

// GetCounterparty returns the other party of the entry: the debtor for
// credits and the creditor for debits.
func (e *Entry) GetCounterparty() Counterparty {
	tx := e.GetFirstTxDetails()
	if tx == nil {
		return Counterparty{}
	}

	party, account := tx.RltdPties.Cdtr, tx.RltdPties.CdtrAcct
	if e.IsCredit() {
		party, account = tx.RltdPties.Dbtr, tx.RltdPties.DbtrAcct
	}

	var personalCode string
	for _, othr := range party.ID.PrvtID.Othr {
		if id := strings.TrimSpace(othr.ID); id != "" {
			personalCode = id
			break
		}
	}

	return Counterparty{
		Name:         strings.TrimSpace(party.Nm),
		IBAN:         strings.TrimSpace(account.ID.IBAN),
		PersonalCode: personalCode,
	}
}
