package repositories

import (
	"github.com/sbilibin2017/gw-settlement-validator/internal/logger"
	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"github.com/sbilibin2017/gw-settlement-validator/internal/validators"
)

// BinRangeRepository looks up card BIN ranges by linear scan.
type BinRangeRepository struct {
	ranges []models.BinMapping
}

func NewBinRangeRepository(ranges []models.BinMapping) *BinRangeRepository {
	return &BinRangeRepository{ranges: ranges}
}

// Match returns the first debit range containing prefix and issued in country.
func (r *BinRangeRepository) Match(prefix uint64, country string) (models.BinMapping, bool) {
	return validators.MatchRange(prefix, r.ranges, country)
}

// IsValidCard reports whether cardNumber belongs to a debit range of the user's country.
func (r *BinRangeRepository) IsValidCard(cardNumber, country string) bool {
	prefix, ok := validators.CardPrefix(cardNumber)
	if !ok {
		return false
	}
	b, ok := r.Match(prefix, country)
	if ok {
		logger.Log.Debugw("card matched bin range", "range", b.Name, "prefix", prefix, "country", country)
	}
	return ok
}

// Len returns the number of loaded ranges.
func (r *BinRangeRepository) Len() int {
	return len(r.ranges)
}
