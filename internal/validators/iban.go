package validators

import "strings"

const (
	ibanMinLength = 15
	ibanMaxLength = 34
	ibanModulus   = 97
	// accumulator is reduced once it grows past nine digits
	ibanReduceAbove = 999_999_999
)

// ValidateIBAN verifies the ISO 13616 mod-97 checksum of an IBAN.
// Surrounding spaces are ignored. Letters must be upper case.
func ValidateIBAN(iban string) bool {
	iban = strings.TrimSpace(iban)
	if len(iban) < ibanMinLength || len(iban) > ibanMaxLength {
		return false
	}

	rearranged := iban[4:] + iban[:4]

	var total uint64
	for i := 0; i < len(rearranged); i++ {
		value, ok := ibanCharValue(rearranged[i])
		if !ok {
			return false
		}

		if value < 10 {
			total = total*10 + value
		} else {
			total = total*100 + value
		}

		if total > ibanReduceAbove {
			total %= ibanModulus
		}
	}

	return total%ibanModulus == 1
}

// ibanCharValue maps 0-9 to themselves and A-Z to 10-35.
func ibanCharValue(c byte) (uint64, bool) {
	switch {
	case c >= '0' && c <= '9':
		return uint64(c - '0'), true
	case c >= 'A' && c <= 'Z':
		return uint64(c-'A') + 10, true
	default:
		return 0, false
	}
}
