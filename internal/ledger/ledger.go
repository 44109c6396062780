// Package ledger keeps the mutable state of a settlement run: balances, seen
// transaction identifiers and the payment account usage index.
package ledger

import (
	"errors"
	"fmt"

	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownUser is returned when a balance change targets a user that was never loaded.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnsupportedType is returned when Apply receives neither a deposit nor a withdrawal.
	ErrUnsupportedType = errors.New("unsupported transaction type")
)

type depositKey struct {
	userID  string
	method  models.PaymentMethod
	account string
}

// Ledger is owned by a single settlement run and is not safe for concurrent use.
type Ledger struct {
	balances map[string]decimal.Decimal
	seen     map[string]struct{}

	// account number -> known users that appear with it anywhere in the batch
	accountUsers map[string]map[string]struct{}
	// input positions of deposits per user, method and account, ascending
	deposits map[depositKey][]int
}

// New indexes the full transaction set once. Only users present in users are
// recorded as account holders.
func New(users []models.User, transactions []models.Transaction) *Ledger {
	l := &Ledger{
		balances:     make(map[string]decimal.Decimal, len(users)),
		seen:         make(map[string]struct{}, len(transactions)),
		accountUsers: make(map[string]map[string]struct{}),
		deposits:     make(map[depositKey][]int),
	}

	for _, u := range users {
		if _, ok := l.balances[u.ID]; ok {
			continue
		}
		l.balances[u.ID] = u.Balance
	}

	for pos, tx := range transactions {
		if _, known := l.balances[tx.UserID]; known {
			holders, ok := l.accountUsers[tx.AccountNumber]
			if !ok {
				holders = make(map[string]struct{})
				l.accountUsers[tx.AccountNumber] = holders
			}
			holders[tx.UserID] = struct{}{}
		}

		if tx.Type == models.Deposit {
			key := depositKey{userID: tx.UserID, method: tx.Method, account: tx.AccountNumber}
			l.deposits[key] = append(l.deposits[key], pos)
		}
	}

	return l
}

// Balance returns the current balance of a user.
func (l *Ledger) Balance(userID string) (decimal.Decimal, bool) {
	b, ok := l.balances[userID]
	return b, ok
}

// MarkSeen records a transaction identifier and reports whether it was new.
func (l *Ledger) MarkSeen(transactionID string) bool {
	if _, ok := l.seen[transactionID]; ok {
		return false
	}
	l.seen[transactionID] = struct{}{}
	return true
}

// HasEarlierDeposit reports whether the user deposited through the same method
// and account at an input position before pos.
func (l *Ledger) HasEarlierDeposit(userID string, method models.PaymentMethod, account string, pos int) bool {
	positions := l.deposits[depositKey{userID: userID, method: method, account: account}]
	return len(positions) > 0 && positions[0] < pos
}

// UsedByOtherUser reports whether any known user other than userID appears
// with account anywhere in the batch.
func (l *Ledger) UsedByOtherUser(account, userID string) bool {
	for holder := range l.accountUsers[account] {
		if holder != userID {
			return true
		}
	}
	return false
}

// Apply settles an approved transaction and returns the new balance.
func (l *Ledger) Apply(tx models.Transaction) (decimal.Decimal, error) {
	balance, ok := l.balances[tx.UserID]
	if !ok {
		return decimal.Zero, fmt.Errorf("apply %s: %w", tx.ID, ErrUnknownUser)
	}

	switch tx.Type {
	case models.Deposit:
		balance = balance.Add(tx.Amount)
	case models.Withdrawal:
		balance = balance.Sub(tx.Amount)
	default:
		return balance, fmt.Errorf("apply %s: %w: %q", tx.ID, ErrUnsupportedType, tx.Type)
	}

	l.balances[tx.UserID] = balance
	return balance, nil
}
