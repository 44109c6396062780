package rules

import (
	"strings"

	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/sbilibin2017/gw-settlement-validator/internal/validators"
	"github.com/shopspring/decimal"
)

// Decline reasons written to the events log.
const (
	ReasonUserNotFound      = "User not found"
	ReasonDuplicateID       = "Transaction ID is not unique"
	ReasonUserFrozen        = "User is frozen"
	ReasonInvalidMethod     = "Invalid payment method"
	ReasonCountryMismatch   = "Country mismatch"
	ReasonInvalidAmount     = "Invalid amount"
	ReasonInsufficientFunds = "Insufficient balance"
	ReasonWithdrawalDenied  = "Withdrawal not allowed"
	ReasonInvalidType       = "Invalid transaction type"
	ReasonSharedAccount     = "Payment account already used by another user"
)

// UserFinder resolves transaction owners.
type UserFinder interface {
	FindByID(id string) (*models.User, bool)
}

// CardValidator checks card numbers against BIN ranges.
type CardValidator interface {
	IsValidCard(cardNumber, country string) bool
}

// History exposes the ledger state the rules read and the seen-ID set they update.
type History interface {
	Balance(userID string) (decimal.Decimal, bool)
	MarkSeen(transactionID string) bool
	HasEarlierDeposit(userID string, method models.PaymentMethod, account string, pos int) bool
	UsedByOtherUser(account, userID string) bool
}

// Default returns the settlement rules in precedence order.
func Default(users UserFinder, cards CardValidator, history History) Chain {
	return Chain{
		{
			Name:   "user_exists",
			Reason: ReasonUserNotFound,
			Check: func(ev *Evaluation) bool {
				user, ok := users.FindByID(ev.Transaction.UserID)
				ev.User = user
				return ok
			},
		},
		{
			// Marks the identifier as seen whenever it is reached, whatever the later outcome.
			Name:   "unique_transaction_id",
			Reason: ReasonDuplicateID,
			Check: func(ev *Evaluation) bool {
				return history.MarkSeen(ev.Transaction.ID)
			},
		},
		{
			Name:   "user_not_frozen",
			Reason: ReasonUserFrozen,
			Check: func(ev *Evaluation) bool {
				return !ev.User.Frozen
			},
		},
		{
			Name:   "valid_payment_method",
			Reason: ReasonInvalidMethod,
			Check: func(ev *Evaluation) bool {
				switch ev.Transaction.Method {
				case models.Transfer:
					return validators.ValidateIBAN(ev.Transaction.AccountNumber)
				case models.Card:
					return cards.IsValidCard(ev.Transaction.AccountNumber, ev.User.Country)
				default:
					return false
				}
			},
		},
		{
			Name:   "country_match",
			Reason: ReasonCountryMismatch,
			Check: func(ev *Evaluation) bool {
				return countryMatches(ev.Transaction, ev.User.Country)
			},
		},
		{
			Name:   "amount_within_limits",
			Reason: ReasonInvalidAmount,
			Check: func(ev *Evaluation) bool {
				return amountWithinLimits(ev.Transaction, ev.User)
			},
		},
		{
			Name:   "sufficient_balance",
			Reason: ReasonInsufficientFunds,
			Check: func(ev *Evaluation) bool {
				if ev.Transaction.Type != models.Withdrawal {
					return true
				}
				balance, ok := history.Balance(ev.User.ID)
				return ok && balance.GreaterThanOrEqual(ev.Transaction.Amount)
			},
		},
		{
			Name:   "withdrawal_after_deposit",
			Reason: ReasonWithdrawalDenied,
			Check: func(ev *Evaluation) bool {
				if ev.Transaction.Type != models.Withdrawal {
					return true
				}
				tx := ev.Transaction
				return history.HasEarlierDeposit(ev.User.ID, tx.Method, tx.AccountNumber, ev.Position)
			},
		},
		{
			Name:   "known_transaction_type",
			Reason: ReasonInvalidType,
			Check: func(ev *Evaluation) bool {
				return ev.Transaction.Type.IsKnown()
			},
		},
		{
			Name:   "account_not_shared",
			Reason: ReasonSharedAccount,
			Check: func(ev *Evaluation) bool {
				return !history.UsedByOtherUser(ev.Transaction.AccountNumber, ev.User.ID)
			},
		},
	}
}

// countryMatches compares the card's leading two characters with the user's
// country. Transfers carry no derivable country and always pass.
func countryMatches(tx models.Transaction, userCountry string) bool {
	switch tx.Method {
	case models.Transfer:
		return true
	case models.Card:
		if len(tx.AccountNumber) < 2 {
			return false
		}
		return strings.EqualFold(tx.AccountNumber[:2], strings.TrimSpace(userCountry))
	default:
		return false
	}
}

func amountWithinLimits(tx models.Transaction, user *models.User) bool {
	if !tx.Amount.IsPositive() {
		return false
	}

	switch tx.Type {
	case models.Deposit:
		return tx.Amount.GreaterThanOrEqual(user.DepositMin) && tx.Amount.LessThanOrEqual(user.DepositMax)
	case models.Withdrawal:
		return tx.Amount.GreaterThanOrEqual(user.WithdrawMin) && tx.Amount.LessThanOrEqual(user.WithdrawMax)
	default:
		return false
	}
}
