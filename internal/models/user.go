package models

import "github.com/shopspring/decimal"

// User represents an account holder loaded from the users dataset.
type User struct {
	ID          string          `json:"user_id" db:"user_id"`         // Unique user identifier
	Name        string          `json:"username" db:"username"`       // Display name
	Balance     decimal.Decimal `json:"balance" db:"balance"`         // Balance at load time
	Country     string          `json:"country" db:"country"`         // ISO country code
	Frozen      bool            `json:"frozen" db:"frozen"`           // Frozen accounts cannot transact
	DepositMin  decimal.Decimal `json:"deposit_min" db:"deposit_min"` // Smallest allowed deposit
	DepositMax  decimal.Decimal `json:"deposit_max" db:"deposit_max"` // Largest allowed deposit
	WithdrawMin decimal.Decimal `json:"withdraw_min" db:"withdraw_min"`
	WithdrawMax decimal.Decimal `json:"withdraw_max" db:"withdraw_max"`
}
