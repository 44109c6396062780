package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/shopspring/decimal"
)

// Column layouts of the input files. A file may start with this header in any
// column order, or carry no header and use this order.
var (
	UserColumns        = []string{"user_id", "username", "balance", "country", "frozen", "deposit_min", "deposit_max", "withdraw_min", "withdraw_max"}
	TransactionColumns = []string{"transaction_id", "user_id", "type", "amount", "method", "account_number"}
	BinColumns         = []string{"name", "range_from", "range_to", "type", "country"}
)

// row gives access to one record by column name.
type row struct {
	fields []string
	col    map[string]int
}

func (r row) get(name string) string {
	return strings.TrimSpace(r.fields[r.col[name]])
}

func (r row) decimal(name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(r.get(name))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return d, nil
}

// ReadUsers reads the users file. Rows that cannot be parsed are skipped.
func ReadUsers(path string) ([]models.User, error) {
	var out []models.User
	err := readFile(path, UserColumns, func(r row) error {
		u, err := parseUser(r)
		if err != nil {
			return err
		}
		out = append(out, u)
		return nil
	})
	return out, err
}

func parseUser(r row) (models.User, error) {
	u := models.User{
		ID:      r.get("user_id"),
		Name:    r.get("username"),
		Country: r.get("country"),
	}

	frozen, err := strconv.ParseBool(r.get("frozen"))
	if err != nil {
		return u, fmt.Errorf("frozen: %w", err)
	}
	u.Frozen = frozen

	if u.Balance, err = r.decimal("balance"); err != nil {
		return u, err
	}
	if u.DepositMin, err = r.decimal("deposit_min"); err != nil {
		return u, err
	}
	if u.DepositMax, err = r.decimal("deposit_max"); err != nil {
		return u, err
	}
	if u.WithdrawMin, err = r.decimal("withdraw_min"); err != nil {
		return u, err
	}
	if u.WithdrawMax, err = r.decimal("withdraw_max"); err != nil {
		return u, err
	}
	return u, nil
}

// ReadTransactions reads the transaction ledger in file order.
// Type and method are kept as written; the rule chain decides whether they are valid.
func ReadTransactions(path string) ([]models.Transaction, error) {
	var out []models.Transaction
	err := readFile(path, TransactionColumns, func(r row) error {
		amount, err := r.decimal("amount")
		if err != nil {
			return err
		}
		out = append(out, models.Transaction{
			ID:            r.get("transaction_id"),
			UserID:        r.get("user_id"),
			Type:          models.TransactionType(r.get("type")),
			Amount:        amount,
			Method:        models.PaymentMethod(r.get("method")),
			AccountNumber: r.get("account_number"),
		})
		return nil
	})
	return out, err
}

// ReadBinMappings reads the card BIN ranges.
func ReadBinMappings(path string) ([]models.BinMapping, error) {
	var out []models.BinMapping
	err := readFile(path, BinColumns, func(r row) error {
		from, err := strconv.ParseUint(r.get("range_from"), 10, 64)
		if err != nil {
			return fmt.Errorf("range_from: %w", err)
		}
		to, err := strconv.ParseUint(r.get("range_to"), 10, 64)
		if err != nil {
			return fmt.Errorf("range_to: %w", err)
		}
		if from > to {
			return fmt.Errorf("range_from %d is above range_to %d", from, to)
		}
		out = append(out, models.BinMapping{
			Name:      r.get("name"),
			RangeFrom: from,
			RangeTo:   to,
			Type:      r.get("type"),
			Country:   r.get("country"),
		})
		return nil
	})
	return out, err
}

// readFile streams path through fn one record at a time. A record with the
// wrong number of fields, or one fn rejects, is logged and skipped.
func readFile(path string, columns []string, fn func(row) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return read(f, path, columns, fn)
}

func read(src io.Reader, name string, columns []string, fn func(row) error) error {
	r := csv.NewReader(src)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	first, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read header of %s: %w", name, err)
	}

	col, isHeader := headerIndex(first, columns)
	skipped := 0

	handle := func(rec []string) {
		line, _ := r.FieldPos(0)
		if len(rec) != len(columns) {
			skipped++
			logger.Log.Warnw("skipping row with unexpected field count",
				"file", name, "line", line, "fields", len(rec), "expected", len(columns))
			return
		}
		if err := fn(row{fields: rec, col: col}); err != nil {
			skipped++
			logger.Log.Warnw("skipping malformed row", "file", name, "line", line, "error", err)
		}
	}

	if !isHeader {
		handle(first)
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			skipped++
			logger.Log.Warnw("skipping unreadable row", "file", name, "line", parseErr.Line, "error", err)
			continue
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		handle(rec)
	}

	if skipped > 0 {
		logger.Log.Warnw("rows skipped", "file", name, "count", skipped)
	}
	return nil
}

// headerIndex maps column names to field positions. When first is not a header
// naming every column, the positional layout of columns is used.
func headerIndex(first []string, columns []string) (map[string]int, bool) {
	idx := make(map[string]int, len(first))
	for i, h := range first {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}

	isHeader := len(first) == len(columns)
	for _, c := range columns {
		if _, ok := idx[c]; !ok {
			isHeader = false
			break
		}
	}
	if isHeader {
		return idx, true
	}

	positional := make(map[string]int, len(columns))
	for i, c := range columns {
		positional[c] = i
	}
	return positional, false
}
