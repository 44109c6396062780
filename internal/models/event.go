package models

import "github.com/shopspring/decimal"

// Decision statuses written to the events log.
const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
)

// Event is the decision taken for one transaction.
type Event struct {
	TransactionID string `json:"transaction_id" db:"transaction_id"`
	Status        string `json:"status" db:"status"`   // APPROVED or DECLINED
	Message       string `json:"message" db:"message"` // Decline reason, empty when approved
}

// Balance is a user's balance after the batch.
type Balance struct {
	UserID  string          `json:"user_id" db:"user_id"`
	Balance decimal.Decimal `json:"balance" db:"balance"`
}
