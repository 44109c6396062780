package models

// BinMapping describes an issuer range over the first ten digits of a card number.
type BinMapping struct {
	Name      string `json:"name"`       // Issuer name
	RangeFrom uint64 `json:"range_from"` // Inclusive lower bound
	RangeTo   uint64 `json:"range_to"`   // Inclusive upper bound
	Type      string `json:"type"`       // Card type code, e.g. DC or CC
	Country   string `json:"country"`    // Issuing country code
}

// Contains reports whether prefix lies inside the inclusive range.
func (b BinMapping) Contains(prefix uint64) bool {
	return b.RangeFrom <= prefix && prefix <= b.RangeTo
}
