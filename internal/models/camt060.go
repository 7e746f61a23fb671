package models

import "encoding/xml"

// StatementRequestDocument is the camt.060.001.03 account reporting request
type StatementRequestDocument struct {
	XMLName     xml.Name                `xml:"urn:iso:std:iso:20022:tech:xsd:camt.060.001.03 Document"`
	AcctRptgReq AccountReportingRequest `xml:"AcctRptgReq"`
}

// AccountReportingRequest is the body of a camt.060 message
type AccountReportingRequest struct {
	GrpHdr  GroupHeader      `xml:"GrpHdr"`
	RptgReq ReportingRequest `xml:"RptgReq"`
}

// ReportingRequest asks for one report or statement type on one account
type ReportingRequest struct {
	ID          string             `xml:"Id"`
	ReqdMsgNmID string             `xml:"ReqdMsgNmId"`
	Acct        RequestAccount     `xml:"Acct"`
	AcctOwnr    RequestAccountOwnr `xml:"AcctOwnr"`
	RptgPrd     ReportingPeriod    `xml:"RptgPrd"`
}

// RequestAccount identifies the account by IBAN
type RequestAccount struct {
	ID struct {
		IBAN string `xml:"IBAN"`
	} `xml:"Id"`
}

// RequestAccountOwnr carries an empty party, as the gateway expects
type RequestAccountOwnr struct {
	Pty struct{} `xml:"Pty"`
}

// ReportingPeriod is the requested date and time window
type ReportingPeriod struct {
	FrToDt struct {
		FrDt string `xml:"FrDt"`
		ToDt string `xml:"ToDt"`
	} `xml:"FrToDt"`
	FrToTm struct {
		FrTm string `xml:"FrTm"`
		ToTm string `xml:"ToTm"`
	} `xml:"FrToTm"`
	Tp string `xml:"Tp"`
}
