package core

import "errors"

// Currency is the code/symbol pair resolved from a country at signup.
type Currency struct {
	Code   string
	Symbol string
}

var ErrInvalidCountry = errors.New("invalid country selected")

// countryCurrencies maps supported country codes to their currency.
var countryCurrencies = map[string]Currency{
	"US": {Code: "USD", Symbol: "$"},
	"UK": {Code: "GBP", Symbol: "£"},
	"CA": {Code: "CAD", Symbol: "C$"},
	"AU": {Code: "AUD", Symbol: "A$"},
	"DE": {Code: "EUR", Symbol: "€"},
	"FR": {Code: "EUR", Symbol: "€"},
	"JP": {Code: "JPY", Symbol: "¥"},
	"IN": {Code: "INR", Symbol: "₹"},
	"BR": {Code: "BRL", Symbol: "R$"},
	"MX": {Code: "MXN", Symbol: "$"},
	"ES": {Code: "EUR", Symbol: "€"},
	"IT": {Code: "EUR", Symbol: "€"},
	"NL": {Code: "EUR", Symbol: "€"},
	"SE": {Code: "SEK", Symbol: "kr"},
	"NO": {Code: "NOK", Symbol: "kr"},
	"DK": {Code: "DKK", Symbol: "kr"},
	"CH": {Code: "CHF", Symbol: "CHF"},
	"SG": {Code: "SGD", Symbol: "S$"},
	"HK": {Code: "HKD", Symbol: "HK$"},
	"ZA": {Code: "ZAR", Symbol: "R"},
}

// ResolveCurrency returns the currency for a country code, or
// ErrInvalidCountry when the code is unrecognized.
func ResolveCurrency(country string) (Currency, error) {
	c, ok := countryCurrencies[country]
	if !ok {
		return Currency{}, ErrInvalidCountry
	}
	return c, nil
}
