package models

// Credit/debit indicators as encoded in camt entries
const (
	TransactionTypeDebit  = "DBIT"
	TransactionTypeCredit = "CRDT"
)

// ISO 20022 namespaces
const (
	NamespacePrefix = "urn:iso:std:iso:20022:tech:xsd:"

	// Requested message names understood by the bank gateway
	IntraDayReportMessageName = "camt.052.001.02"
	HistoricMessageName       = "camt.053.001.02"
	StatementRequestVersion   = "001.03"

	// Reporting period query type "all"
	QueryTypeAll = "ALLL"
)

// File permissions
const (
	PermissionDirectory  = 0750
	PermissionReportFile = 0644
)
