// Package xmlutils provides XML-related utility functions used throughout the application.
package xmlutils

// XPath expressions for the parts of a camt message read without full decoding.
// xmlpath matches on local names, so the same paths serve camt.052 and camt.053.
const (
	XPathMessageID   = "//GrpHdr/MsgId"
	XPathCreatedAt   = "//GrpHdr/CreDtTm"
	XPathAccountIBAN = "//Acct/Id/IBAN"
	XPathEntryAmount = "//Ntry/Amt"
)
