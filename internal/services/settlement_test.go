package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/sbilibin2017/gw-settlement-validator/internal/rules"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const iban = "EE382200221020145685"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func batchUsers() []models.User {
	return []models.User{
		{
			ID: "U1", Name: "alice", Balance: dec("0"), Country: "EE",
			DepositMin: dec("10"), DepositMax: dec("1000"),
			WithdrawMin: dec("10"), WithdrawMax: dec("1000"),
		},
		{
			ID: "U2", Name: "bob", Balance: dec("42.50"), Country: "LT",
			DepositMin: dec("1"), DepositMax: dec("100"),
			WithdrawMin: dec("1"), WithdrawMax: dec("100"),
		},
	}
}

func batchBins() []models.BinMapping {
	return []models.BinMapping{
		{Name: "Visa Debit", RangeFrom: 4000000000, RangeTo: 4099999999, Type: "DC", Country: "EE"},
	}
}

func batchTransactions() []models.Transaction {
	return []models.Transaction{
		{ID: "T1", UserID: "U1", Type: models.Deposit, Amount: dec("500"), Method: models.Transfer, AccountNumber: iban},
		{ID: "T2", UserID: "U1", Type: models.Withdrawal, Amount: dec("500"), Method: models.Transfer, AccountNumber: iban},
		{ID: "T1", UserID: "U1", Type: models.Deposit, Amount: dec("500"), Method: models.Transfer, AccountNumber: iban},
		{ID: "T4", UserID: "U1", Type: models.Deposit, Amount: dec("50"), Method: models.Card, AccountNumber: "9999999999999999"},
		{ID: "T5", UserID: "U1", Type: models.Withdrawal, Amount: dec("10"), Method: models.Transfer, AccountNumber: iban},
	}
}

func balanceStrings(balances []models.Balance) map[string]string {
	out := make(map[string]string, len(balances))
	for _, b := range balances {
		out[b.UserID] = b.Balance.String()
	}
	return out
}

func TestSettle_Batch(t *testing.T) {
	res := Settle(batchUsers(), batchTransactions(), batchBins())

	assert.Equal(t, []models.Event{
		{TransactionID: "T1", Status: models.StatusApproved},
		{TransactionID: "T2", Status: models.StatusApproved},
		{TransactionID: "T1", Status: models.StatusDeclined, Message: rules.ReasonDuplicateID},
		{TransactionID: "T4", Status: models.StatusDeclined, Message: rules.ReasonInvalidMethod},
		{TransactionID: "T5", Status: models.StatusDeclined, Message: rules.ReasonInsufficientFunds},
	}, res.Events)

	require.Len(t, res.Balances, 2)
	assert.Equal(t, "U1", res.Balances[0].UserID)
	assert.Equal(t, "U2", res.Balances[1].UserID)
	assert.True(t, res.Balances[0].Balance.IsZero())
	assert.Equal(t, "42.5", res.Balances[1].Balance.String())

	assert.Equal(t, 5, res.Summary.Processed)
	assert.Equal(t, 2, res.Summary.Approved)
	assert.Equal(t, 3, res.Summary.Declined)
	assert.Equal(t, map[string]int{
		rules.ReasonDuplicateID:       1,
		rules.ReasonInvalidMethod:     1,
		rules.ReasonInsufficientFunds: 1,
	}, res.Summary.DeclinedByReason)
}

func TestSettle_DepositThenWithdrawal(t *testing.T) {
	txs := batchTransactions()

	res := Settle(batchUsers(), txs[:1], batchBins())
	assert.Equal(t, "500", balanceStrings(res.Balances)["U1"])

	res = Settle(batchUsers(), txs[:2], batchBins())
	assert.Equal(t, "0", balanceStrings(res.Balances)["U1"])
}

func TestSettle_InsufficientBalanceBeforeLinkage(t *testing.T) {
	// no deposit exists either, but the balance check comes first
	res := Settle(batchUsers(), []models.Transaction{
		{ID: "W", UserID: "U1", Type: models.Withdrawal, Amount: dec("10"), Method: models.Transfer, AccountNumber: iban},
	}, batchBins())

	require.Len(t, res.Events, 1)
	assert.Equal(t, rules.ReasonInsufficientFunds, res.Events[0].Message)
}

func TestSettle_Deterministic(t *testing.T) {
	first := Settle(batchUsers(), batchTransactions(), batchBins())
	second := Settle(batchUsers(), batchTransactions(), batchBins())

	assert.Equal(t, first.Events, second.Events)
	assert.Equal(t, balanceStrings(first.Balances), balanceStrings(second.Balances))
}

func TestSettle_OneEventPerTransactionInInputOrder(t *testing.T) {
	txs := batchTransactions()
	txs = append(txs, models.Transaction{ID: "T6", UserID: "nobody", Type: models.Deposit, Amount: dec("1")})

	res := Settle(batchUsers(), txs, batchBins())

	require.Len(t, res.Events, len(txs))
	for i, tx := range txs {
		assert.Equal(t, tx.ID, res.Events[i].TransactionID)
	}
	assert.Equal(t, rules.ReasonUserNotFound, res.Events[5].Message)
}

func TestSettle_BalanceConservation(t *testing.T) {
	users := batchUsers()
	txs := []models.Transaction{
		{ID: "a", UserID: "U1", Type: models.Deposit, Amount: dec("120.25"), Method: models.Transfer, AccountNumber: iban},
		{ID: "b", UserID: "U2", Type: models.Deposit, Amount: dec("99.99"), Method: models.Transfer, AccountNumber: "GB82WEST12345698765432"},
		{ID: "c", UserID: "U1", Type: models.Withdrawal, Amount: dec("20.25"), Method: models.Transfer, AccountNumber: iban},
		{ID: "d", UserID: "U2", Type: models.Withdrawal, Amount: dec("500"), Method: models.Transfer, AccountNumber: "GB82WEST12345698765432"},
		{ID: "e", UserID: "U2", Type: models.Withdrawal, Amount: dec("42.49"), Method: models.Transfer, AccountNumber: "GB82WEST12345698765432"},
	}

	res := Settle(users, txs, batchBins())

	initial := decimal.Zero
	for _, u := range users {
		initial = initial.Add(u.Balance)
	}
	final := decimal.Zero
	for _, b := range res.Balances {
		final = final.Add(b.Balance)
	}

	want := initial.Add(res.Summary.ApprovedDeposits).Sub(res.Summary.ApprovedWithdrawals)
	assert.True(t, want.Equal(final), "want %s, got %s", want, final)
	assert.Equal(t, 4, res.Summary.Approved)
	assert.Equal(t, map[string]string{"U1": "100", "U2": "100"}, balanceStrings(res.Balances))
}

func TestSettlementService_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	tests := []struct {
		name        string
		mockSetup   func() *SettlementService
		expectedErr bool
	}{
		{
			name: "all_sinks_succeed",
			mockSetup: func() *SettlementService {
				writer := NewMockResultWriter(ctrl)
				cache := NewMockBalanceCache(ctrl)
				kw := NewMockKafkaWriter(ctrl)

				writer.EXPECT().
					SaveRun(ctx, gomock.Any(), gomock.Len(2), gomock.Len(5)).
					Return(nil)
				cache.EXPECT().
					SetBalances(ctx, gomock.Any(), gomock.Len(2)).
					Return(nil)
				kw.EXPECT().
					WriteMessages(ctx, gomock.Any()).
					Return(nil)

				return NewSettlementService(writer, cache, kw)
			},
		},
		{
			name: "save_failure_stops_delivery",
			mockSetup: func() *SettlementService {
				writer := NewMockResultWriter(ctrl)
				cache := NewMockBalanceCache(ctrl)
				kw := NewMockKafkaWriter(ctrl)

				writer.EXPECT().
					SaveRun(ctx, gomock.Any(), gomock.Any(), gomock.Any()).
					Return(errors.New("connection refused"))

				return NewSettlementService(writer, cache, kw)
			},
			expectedErr: true,
		},
		{
			name: "cache_failure_is_logged",
			mockSetup: func() *SettlementService {
				writer := NewMockResultWriter(ctrl)
				cache := NewMockBalanceCache(ctrl)
				kw := NewMockKafkaWriter(ctrl)

				writer.EXPECT().
					SaveRun(ctx, gomock.Any(), gomock.Any(), gomock.Any()).
					Return(nil)
				cache.EXPECT().
					SetBalances(ctx, gomock.Any(), gomock.Any()).
					Return(errors.New("redis down"))
				kw.EXPECT().
					WriteMessages(ctx, gomock.Any()).
					Return(nil)

				return NewSettlementService(writer, cache, kw)
			},
		},
		{
			name: "kafka_failure_is_logged",
			mockSetup: func() *SettlementService {
				kw := NewMockKafkaWriter(ctrl)
				kw.EXPECT().
					WriteMessages(ctx, gomock.Any()).
					Return(errors.New("broker unavailable"))

				return NewSettlementService(nil, nil, kw)
			},
		},
		{
			name: "no_sinks",
			mockSetup: func() *SettlementService {
				return NewSettlementService(nil, nil, nil)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := tt.mockSetup()

			runID, res, err := svc.Run(ctx, batchUsers(), batchTransactions(), batchBins())

			assert.NotEqual(t, uuid.Nil, runID)
			assert.Len(t, res.Events, 5)
			if tt.expectedErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), runID.String())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettlementService_RunPassesRunID(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	writer := NewMockResultWriter(ctrl)
	cache := NewMockBalanceCache(ctrl)

	var saved, cached uuid.UUID
	writer.EXPECT().
		SaveRun(ctx, gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID, _ []models.Balance, _ []models.Event) error {
			saved = id
			return nil
		})
	cache.EXPECT().
		SetBalances(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, id uuid.UUID, _ []models.Balance) error {
			cached = id
			return nil
		})

	runID, _, err := NewSettlementService(writer, cache, nil).Run(ctx, batchUsers(), batchTransactions(), batchBins())
	require.NoError(t, err)
	assert.Equal(t, runID, saved)
	assert.Equal(t, runID, cached)
}

func TestSettlementService_PublishDecisions(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	runID := uuid.New()
	events := []models.Event{
		{TransactionID: "T1", Status: models.StatusApproved},
		{TransactionID: "T2", Status: models.StatusDeclined, Message: rules.ReasonUserFrozen},
	}

	kw := NewMockKafkaWriter(ctrl)
	var published []kafka.Message
	kw.EXPECT().
		WriteMessages(ctx, gomock.Any()).
		Do(func(_ context.Context, msgs ...kafka.Message) {
			published = append(published, msgs...)
		}).
		Return(nil)

	NewSettlementService(nil, nil, kw).publishDecisions(ctx, runID, events)

	require.Len(t, published, 2)
	for i, msg := range published {
		assert.Equal(t, events[i].TransactionID, string(msg.Key))

		var got decisionMessage
		require.NoError(t, json.Unmarshal(msg.Value, &got))
		assert.Equal(t, runID.String(), got.RunID)
		assert.Equal(t, events[i], got.Event)
	}
}

func TestSettlementService_PublishDecisionsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// no WriteMessages expectation: an empty run must not reach Kafka
	kw := NewMockKafkaWriter(ctrl)
	NewSettlementService(nil, nil, kw).publishDecisions(context.Background(), uuid.New(), nil)
}

func TestSettlementService_PublishDecisionsDisabledIsQuiet(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := logger.Log
	logger.Log = zap.New(core).Sugar()
	defer func() { logger.Log = prev }()

	events := []models.Event{{TransactionID: "T1", Status: models.StatusApproved}}
	NewSettlementService(nil, nil, nil).publishDecisions(context.Background(), uuid.New(), events)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.DebugLevel, logs.All()[0].Level)
	assert.Zero(t, logs.FilterLevelExact(zapcore.WarnLevel).Len())
}
