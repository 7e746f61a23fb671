package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ContributionStatus is the lifecycle of an expected contribution
type ContributionStatus string

const (
	ContributionPending ContributionStatus = "PENDING"
	ContributionMatched ContributionStatus = "MATCHED"
	ContributionExpired ContributionStatus = "EXPIRED"
)

// ExpectedContribution is a contribution the surrounding system expects to
// arrive on a bank account.
type ExpectedContribution struct {
	ID                    string             `json:"id" yaml:"id"`
	MemberID              string             `json:"member_id" yaml:"member_id"`
	Account               string             `json:"account" yaml:"account"`
	Amount                decimal.Decimal    `json:"amount" yaml:"amount"`
	Currency              string             `json:"currency" yaml:"currency"`
	Reference             string             `json:"reference" yaml:"reference"`
	CreatedAt             time.Time          `json:"created_at" yaml:"created_at"`
	Status                ContributionStatus `json:"status" yaml:"status"`
	MatchedTransactionRef string             `json:"matched_transaction_ref,omitempty" yaml:"matched_transaction_ref,omitempty"`
}

// IsPending returns true if the contribution can still be matched
func (c ExpectedContribution) IsPending() bool {
	return c.Status == ContributionPending
}
