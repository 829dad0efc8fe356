// market/instruments.go
package market

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type InstrumentMeta struct {
	Name          string
	BaseCurrency  string
	QuoteCurrency string
	PipLocation   int
	// TickLocation is the exponent of the smallest quoted price increment.
	// FX majors quote in pipettes (one decimal past the pip).
	TickLocation int
}

var Instruments = map[string]InstrumentMeta{
	"EUR_USD": fx("EUR", "USD"),
	"GBP_USD": fx("GBP", "USD"),
	"AUD_USD": fx("AUD", "USD"),
	"NZD_USD": fx("NZD", "USD"),
	"USD_CAD": fx("USD", "CAD"),
	"USD_CHF": fx("USD", "CHF"),
	"EUR_GBP": fx("EUR", "GBP"),
	"USD_JPY": fx("USD", "JPY"),
	"EUR_JPY": fx("EUR", "JPY"),
	"GBP_JPY": fx("GBP", "JPY"),
	"AUD_JPY": fx("AUD", "JPY"),
}

func fx(base, quote string) InstrumentMeta {
	pip := -4
	if quote == "JPY" {
		pip = -2
	}
	return InstrumentMeta{
		Name:          base + "_" + quote,
		BaseCurrency:  base,
		QuoteCurrency: quote,
		PipLocation:   pip,
		TickLocation:  pip - 1,
	}
}

// Lookup returns metadata for a pair in any of the accepted spellings.
// Unknown six-letter pairs get synthesized metadata so that pip math keeps
// working for crosses that are not in the table.
func Lookup(pair string) (InstrumentMeta, error) {
	name, err := NormalizePair(pair)
	if err != nil {
		return InstrumentMeta{}, err
	}
	if meta, ok := Instruments[name]; ok {
		return meta, nil
	}
	return fx(name[:3], name[4:]), nil
}

// NormalizePair maps "EUR/USD", "EURUSD", "eur_usd" and IG epics such as
// "CS.D.EURUSD.TODAY.IP" onto the canonical "EUR_USD" form.
func NormalizePair(pair string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(pair))
	if strings.HasPrefix(s, "CS.D.") {
		parts := strings.Split(s, ".")
		if len(parts) >= 3 {
			s = parts[2]
		}
	}
	s = strings.NewReplacer("/", "", "_", "", "-", "", " ", "").Replace(s)
	if len(s) != 6 {
		return "", fmt.Errorf("cannot normalize pair %q", pair)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("cannot normalize pair %q", pair)
		}
	}
	return s[:3] + "_" + s[3:], nil
}

// IsJPY reports whether the pair is quoted in yen.
func IsJPY(pair string) bool {
	meta, err := Lookup(pair)
	if err != nil {
		return strings.Contains(strings.ToUpper(pair), "JPY")
	}
	return meta.QuoteCurrency == "JPY"
}

// PipSize returns 0.01 for JPY-quoted pairs and 0.0001 for everything else.
func PipSize(pair string) decimal.Decimal {
	if IsJPY(pair) {
		return decimal.New(1, -2)
	}
	return decimal.New(1, -4)
}

// PipSizeFloat is PipSize for callers doing float math (feature building).
func PipSizeFloat(pair string) float64 {
	return PipSize(pair).InexactFloat64()
}

// TickSize returns the smallest quoted price increment for the pair.
func TickSize(pair string) decimal.Decimal {
	meta, err := Lookup(pair)
	if err != nil {
		return PipSize(pair).Div(decimal.NewFromInt(10))
	}
	return decimal.New(1, int32(meta.TickLocation))
}

// ToPips converts a price distance into pips for the pair.
func ToPips(pair string, priceDelta float64) float64 {
	return priceDelta / PipSizeFloat(pair)
}
