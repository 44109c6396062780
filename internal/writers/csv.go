package writers

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
)

// WriteBalances writes one user_id,balance row per user in the given order.
// Balances are written exactly, without rounding.
func WriteBalances(balances []models.Balance, filePath string) error {
	records := make([][]string, 0, len(balances))
	for _, b := range balances {
		records = append(records, []string{b.UserID, b.Balance.String()})
	}
	return writeCSV(filePath, []string{"user_id", "balance"}, records)
}

// WriteEvents writes one transaction_id,status,message row per decision.
func WriteEvents(events []models.Event, filePath string) error {
	records := make([][]string, 0, len(events))
	for _, e := range events {
		records = append(records, []string{e.TransactionID, e.Status, e.Message})
	}
	return writeCSV(filePath, []string{"transaction_id", "status", "message"}, records)
}

// writeCSV replaces filePath with header followed by records. Missing parent
// directories are created.
func writeCSV(filePath string, header []string, records [][]string) (err error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", filePath, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing %s: %w", filePath, cerr)
		}
	}()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	if err := writer.WriteAll(records); err != nil {
		return fmt.Errorf("error writing records: %w", err)
	}

	logger.Log.Infow("file written", "path", filePath, "rows", len(records))
	return nil
}
