package validators

import (
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIBAN(t *testing.T) {
	tests := []struct {
		name string
		iban string
		want bool
	}{
		{name: "estonia", iban: "EE382200221020145685", want: true},
		{name: "united kingdom", iban: "GB82WEST12345698765432", want: true},
		{name: "germany", iban: "DE89370400440532013000", want: true},
		{name: "france with letter in bban", iban: "FR1420041010050500013M02606", want: true},
		{name: "netherlands", iban: "NL91ABNA0417164300", want: true},
		{name: "lower case letters rejected", iban: "gb82west12345698765432", want: false},
		{name: "single lower case letter rejected", iban: "GB82WESt12345698765432", want: false},
		{name: "surrounding spaces", iban: "  EE382200221020145685 ", want: true},
		{name: "wrong check digits", iban: "EE382200221020145686", want: false},
		{name: "truncated", iban: "EE3822002210201", want: false},
		{name: "shorter than minimum", iban: "EE38220022102", want: false},
		{name: "too long", iban: "EE38220022102014568500000000000000000", want: false},
		{name: "punctuation", iban: "EE38-2200221020145685", want: false},
		{name: "inner space", iban: "EE38 2200 2210 2014 5685", want: false},
		{name: "empty", iban: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateIBAN(tt.iban))
		})
	}
}

func TestValidateIBAN_GeneratedRoundTrip(t *testing.T) {
	bbans := map[string]string{
		"EE": "2200221020145685",
		"LT": "1000011101001000",
		"LV": "HABA0551020000001",
		"FI": "12345600000785",
		"CH": "0076201162385295",
	}

	for country, bban := range bbans {
		t.Run(country, func(t *testing.T) {
			iban := buildIBAN(t, country, bban)
			assert.True(t, ValidateIBAN(iban), "generated iban %s must validate", iban)
		})
	}
}

func TestValidateIBAN_DetectsSingleCharacterChange(t *testing.T) {
	valid := []string{"EE382200221020145685", "GB82WEST12345698765432", "FR1420041010050500013M02606"}

	for _, iban := range valid {
		for i := 0; i < len(iban); i++ {
			mutated := []byte(iban)
			mutated[i] = nextSameClass(iban[i])
			assert.False(t, ValidateIBAN(string(mutated)), "change at %d of %s must be detected", i, iban)
		}
	}
}

// buildIBAN computes ISO 13616 check digits for a country and BBAN.
func buildIBAN(t *testing.T, country, bban string) string {
	t.Helper()

	var digits strings.Builder
	for _, c := range bban + country + "00" {
		switch {
		case c >= '0' && c <= '9':
			digits.WriteRune(c)
		default:
			digits.WriteString(fmt.Sprint(int(c-'A') + 10))
		}
	}

	n, ok := new(big.Int).SetString(digits.String(), 10)
	require.True(t, ok)
	check := 98 - new(big.Int).Mod(n, big.NewInt(97)).Int64()

	return fmt.Sprintf("%s%02d%s", country, check, bban)
}

func nextSameClass(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return '0' + (c-'0'+1)%10
	default:
		return 'A' + (c-'A'+1)%26
	}
}
