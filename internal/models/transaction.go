package models

import "github.com/shopspring/decimal"

// TransactionType is the operation requested by a transaction.
type TransactionType string

// Known transaction types. Any other value is invalid.
const (
	Deposit    TransactionType = "DEPOSIT"
	Withdrawal TransactionType = "WITHDRAWAL"
)

// IsKnown reports whether t is DEPOSIT or WITHDRAWAL.
func (t TransactionType) IsKnown() bool {
	return t == Deposit || t == Withdrawal
}

// PaymentMethod is the instrument a transaction moves money through.
type PaymentMethod string

// Known payment methods. Any other value is invalid.
const (
	Card     PaymentMethod = "CARD"
	Transfer PaymentMethod = "TRANSFER"
)

// Transaction represents a single ledger row, immutable once loaded.
type Transaction struct {
	ID            string          `json:"transaction_id" db:"transaction_id"` // Batch-unique identifier
	UserID        string          `json:"user_id" db:"user_id"`               // Owning user
	Type          TransactionType `json:"type" db:"type"`                     // DEPOSIT or WITHDRAWAL
	Amount        decimal.Decimal `json:"amount" db:"amount"`                 // Exact amount
	Method        PaymentMethod   `json:"method" db:"method"`                 // CARD or TRANSFER
	AccountNumber string          `json:"account_number" db:"account_number"` // IBAN or card number
}
