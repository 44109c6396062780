package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sbilibin2017/gw-settlement-validator/internal/ledger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/sbilibin2017/gw-settlement-validator/internal/repositories"
	"github.com/sbilibin2017/gw-settlement-validator/internal/rules"
	"github.com/segmentio/kafka-go"
)

//go:generate mockgen -source=settlement.go -destination=settlement_mock.go -package=services

// ResultWriter persists the outcome of a run.
type ResultWriter interface {
	SaveRun(ctx context.Context, runID uuid.UUID, balances []models.Balance, events []models.Event) error // Saves balances and events of a run
}

// BalanceCache stores the balance snapshot of a run for fast reads.
type BalanceCache interface {
	SetBalances(ctx context.Context, runID uuid.UUID, balances []models.Balance) error // Caches balances under the run
}

// KafkaWriter defines a Kafka writer abstraction.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error // Writes messages to Kafka
	Close() error                                                   // Closes the Kafka writer
}

// ReasonUnexpected is reported when an approved transaction cannot be applied to the ledger.
const ReasonUnexpected = "Unexpected error occurred during transaction processing"

// decisionMessage is the Kafka payload for one decision.
type decisionMessage struct {
	RunID string `json:"run_id"`
	models.Event
}

// Settle validates every transaction in input order and settles the approved ones.
// It has no side effects outside the returned Result.
func Settle(users []models.User, transactions []models.Transaction, bins []models.BinMapping) Result {
	userRepo := repositories.NewUserReadRepository(users)
	binRepo := repositories.NewBinRangeRepository(bins)
	book := ledger.New(userRepo.All(), transactions)
	chain := rules.Default(userRepo, binRepo, book)
	logger.Log.Debugw("settlement started",
		"users", len(userRepo.All()), "transactions", len(transactions), "bin_ranges", binRepo.Len(), "rules", chain.Names())

	assembler := NewAssembler(len(transactions))
	for pos, tx := range transactions {
		ev := &rules.Evaluation{Position: pos, Transaction: tx}

		if failed, ok := chain.Evaluate(ev); !ok {
			logger.Log.Debugw("transaction declined",
				"transaction_id", tx.ID, "user_id", tx.UserID, "rule", failed.Name, "reason", failed.Reason)
			assembler.Decline(tx, failed.Reason)
			continue
		}

		balance, err := book.Apply(tx)
		if err != nil {
			logger.Log.Errorw("failed to apply approved transaction", "transaction_id", tx.ID, "error", err)
			assembler.Decline(tx, ReasonUnexpected)
			continue
		}
		logger.Log.Debugw("transaction approved",
			"transaction_id", tx.ID, "user_id", tx.UserID, "balance", balance.String())
		assembler.Approve(tx)
	}

	return assembler.Result(userRepo.All(), book)
}

// SettlementService runs a batch and hands the outcome to the configured sinks.
// Every sink is optional.
type SettlementService struct {
	resultWriter ResultWriter
	balanceCache BalanceCache
	kafkaWriter  KafkaWriter
}

// NewSettlementService creates a new SettlementService.
func NewSettlementService(resultWriter ResultWriter, balanceCache BalanceCache, kafkaWriter KafkaWriter) *SettlementService {
	return &SettlementService{
		resultWriter: resultWriter,
		balanceCache: balanceCache,
		kafkaWriter:  kafkaWriter,
	}
}

// Run settles the batch under a fresh run ID and delivers the result.
// Only a persistence failure is returned; cache and Kafka failures are logged.
func (s *SettlementService) Run(
	ctx context.Context,
	users []models.User,
	transactions []models.Transaction,
	bins []models.BinMapping,
) (uuid.UUID, Result, error) {
	runID := uuid.New()

	start := time.Now()
	result := Settle(users, transactions, bins)
	logger.Log.Infow("settlement finished",
		"run_id", runID,
		"processed", result.Summary.Processed,
		"approved", result.Summary.Approved,
		"declined", result.Summary.Declined,
		"declined_by_reason", result.Summary.DeclinedByReason,
		"duration", time.Since(start),
	)

	if s.resultWriter != nil {
		if err := s.resultWriter.SaveRun(ctx, runID, result.Balances, result.Events); err != nil {
			logger.Log.Errorw("failed to save settlement run", "run_id", runID, "error", err)
			return runID, result, fmt.Errorf("save run %s: %w", runID, err)
		}
	}

	if s.balanceCache != nil {
		if err := s.balanceCache.SetBalances(ctx, runID, result.Balances); err != nil {
			logger.Log.Errorw("failed to cache balances", "run_id", runID, "error", err)
		}
	}

	s.publishDecisions(ctx, runID, result.Events)

	return runID, result, nil
}

// publishDecisions publishes every decision of the run to Kafka.
func (s *SettlementService) publishDecisions(ctx context.Context, runID uuid.UUID, events []models.Event) {
	if s.kafkaWriter == nil {
		logger.Log.Debugw("Kafka writer not configured, skipping publishing", "run_id", runID)
		return
	}
	if len(events) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		data, err := json.Marshal(decisionMessage{RunID: runID.String(), Event: e})
		if err != nil {
			logger.Log.Errorw("Failed to marshal decision for Kafka", "transaction_id", e.TransactionID, "error", err)
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.TransactionID),
			Value: data,
		})
	}

	if err := s.kafkaWriter.WriteMessages(ctx, msgs...); err != nil {
		logger.Log.Errorw("Failed to publish decisions to Kafka", "run_id", runID, "count", len(msgs), "error", err)
		return
	}
	logger.Log.Infow("Decisions published to Kafka", "run_id", runID, "count", len(msgs))
}
