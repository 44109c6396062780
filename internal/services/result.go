package services

import (
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/shopspring/decimal"
)

// Summary aggregates the decisions of a run.
type Summary struct {
	Processed           int             `json:"processed"`
	Approved            int             `json:"approved"`
	Declined            int             `json:"declined"`
	DeclinedByReason    map[string]int  `json:"declined_by_reason"`
	ApprovedDeposits    decimal.Decimal `json:"approved_deposits"`
	ApprovedWithdrawals decimal.Decimal `json:"approved_withdrawals"`
}

// Result is the outcome of one settlement run.
type Result struct {
	Events   []models.Event   // one per transaction, input order
	Balances []models.Balance // one per user, load order
	Summary  Summary
}

// BalanceReader exposes final balances to the assembler.
type BalanceReader interface {
	Balance(userID string) (decimal.Decimal, bool)
}

// Assembler collects decisions in input order and builds the balance snapshot.
type Assembler struct {
	events  []models.Event
	summary Summary
}

// NewAssembler preallocates room for n decisions.
func NewAssembler(n int) *Assembler {
	return &Assembler{
		events: make([]models.Event, 0, n),
		summary: Summary{
			DeclinedByReason:    make(map[string]int),
			ApprovedDeposits:    decimal.Zero,
			ApprovedWithdrawals: decimal.Zero,
		},
	}
}

// Approve records an approved transaction.
func (a *Assembler) Approve(tx models.Transaction) {
	a.events = append(a.events, models.Event{TransactionID: tx.ID, Status: models.StatusApproved})
	a.summary.Processed++
	a.summary.Approved++

	switch tx.Type {
	case models.Deposit:
		a.summary.ApprovedDeposits = a.summary.ApprovedDeposits.Add(tx.Amount)
	case models.Withdrawal:
		a.summary.ApprovedWithdrawals = a.summary.ApprovedWithdrawals.Add(tx.Amount)
	}
}

// Decline records a declined transaction with its reason.
func (a *Assembler) Decline(tx models.Transaction, reason string) {
	a.events = append(a.events, models.Event{TransactionID: tx.ID, Status: models.StatusDeclined, Message: reason})
	a.summary.Processed++
	a.summary.Declined++
	a.summary.DeclinedByReason[reason]++
}

// Result builds the final result. Every user gets a balance row, including
// users without transactions.
func (a *Assembler) Result(users []models.User, balances BalanceReader) Result {
	snapshot := make([]models.Balance, 0, len(users))
	for _, u := range users {
		b, ok := balances.Balance(u.ID)
		if !ok {
			b = u.Balance
		}
		snapshot = append(snapshot, models.Balance{UserID: u.ID, Balance: b})
	}

	return Result{
		Events:   a.events,
		Balances: snapshot,
		Summary:  a.summary,
	}
}
