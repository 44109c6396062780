package validators

import (
	"strconv"
	"strings"

	"github.com/sbilibin2017/gw-settlement-validator/internal/models"
	"golang.org/x/text/language"
)

// CardPrefixLength is the number of leading card digits matched against BIN ranges.
const CardPrefixLength = 10

// debitTypes lists the BIN type codes accepted as debit cards.
var debitTypes = map[string]struct{}{
	"DC":    {},
	"DEBIT": {},
}

// CardPrefix returns the first ten digits of a card number as an integer.
// It reports false when the number is too short or the prefix is not numeric.
func CardPrefix(cardNumber string) (uint64, bool) {
	if len(cardNumber) < CardPrefixLength {
		return 0, false
	}

	prefix := cardNumber[:CardPrefixLength]
	for i := 0; i < len(prefix); i++ {
		if prefix[i] < '0' || prefix[i] > '9' {
			return 0, false
		}
	}

	value, err := strconv.ParseUint(prefix, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// IsDebitType reports whether a BIN type code denotes a debit card.
func IsDebitType(binType string) bool {
	_, ok := debitTypes[strings.ToUpper(strings.TrimSpace(binType))]
	return ok
}

// SameCountry compares two country codes case-insensitively.
// Alpha-3 codes are normalised to alpha-2 first, so "EST" equals "EE".
func SameCountry(a, b string) bool {
	return NormalizeCountry(a) == NormalizeCountry(b)
}

// NormalizeCountry returns the upper-case ISO 3166-1 alpha-2 form of a country code.
// Codes that are not recognised are returned upper-cased and trimmed.
func NormalizeCountry(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return code
	}

	region, err := language.ParseRegion(code)
	if err != nil {
		return code
	}
	if iso := region.String(); len(iso) == 2 {
		return iso
	}
	return code
}

// ValidateCardAgainstRanges reports whether the card's ten digit prefix falls into
// a debit BIN range issued in userCountry.
func ValidateCardAgainstRanges(cardNumber string, ranges []models.BinMapping, userCountry string) bool {
	prefix, ok := CardPrefix(cardNumber)
	if !ok {
		return false
	}
	_, ok = MatchRange(prefix, ranges, userCountry)
	return ok
}

// MatchRange returns the first debit range containing prefix and issued in country.
func MatchRange(prefix uint64, ranges []models.BinMapping, country string) (models.BinMapping, bool) {
	for _, r := range ranges {
		if r.Contains(prefix) && IsDebitType(r.Type) && SameCountry(r.Country, country) {
			return r, true
		}
	}
	return models.BinMapping{}, false
}
