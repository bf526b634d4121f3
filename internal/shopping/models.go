package shopping

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

// Key identifies a ledger line. Names and units are compared exactly.
type Key struct {
	Name string
	Unit string
}

// Line is one consolidated entry of the shopping list. A nil Quantity means no
// contributing ingredient carried a number ("salt to taste").
type Line struct {
	Name     string   `json:"name"`
	Unit     string   `json:"unit"`
	Quantity *float64 `json:"quantity"`
}

// String renders the line as "name - amount unit", or the name alone when the
// quantity is unknown.
func (l Line) String() string {
	if l.Quantity == nil {
		return l.Name
	}
	return strings.TrimSpace(l.Name + " - " + FormatQuantity(*l.Quantity) + " " + l.Unit)
}

// Ledger is the shopping list derived from a plan, sorted by name.
type Ledger []Line

// Text renders the ledger one line per entry.
func (l Ledger) Text() string {
	return strings.Join(l.Strings(), "\n")
}

// Strings renders every line.
func (l Ledger) Strings() []string {
	out := make([]string, 0, len(l))
	for _, line := range l {
		out = append(out, line.String())
	}
	return out
}

// FormatQuantity prints whole numbers without decimals and everything else
// rounded to one decimal place. A rounding that lands on ".0" is dropped, so
// 2.96 prints as "3". Exact ties round away from zero (1.25 prints as "1.3").
func FormatQuantity(q float64) string {
	if q == math.Trunc(q) && !math.IsInf(q, 0) {
		return strconv.FormatFloat(q, 'f', 0, 64)
	}
	return strings.TrimSuffix(formatTenths(q), ".0")
}

// formatTenths rounds to one decimal. strconv breaks ties to even, so a value
// whose exact binary expansion sits halfway between two tenths is bumped up.
func formatTenths(q float64) string {
	s := strconv.FormatFloat(q, 'f', 1, 64)
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return s
	}

	tenths := new(big.Float).SetPrec(128).SetFloat64(math.Abs(q))
	tenths.Mul(tenths, big.NewFloat(10))
	whole, _ := tenths.Int(nil)
	frac := new(big.Float).Sub(tenths, new(big.Float).SetInt(whole))
	if frac.Cmp(big.NewFloat(0.5)) != 0 {
		return s
	}

	digits := whole.Add(whole, big.NewInt(1)).String()
	if len(digits) == 1 {
		digits = "0" + digits
	}
	out := digits[:len(digits)-1] + "." + digits[len(digits)-1:]
	if q < 0 {
		out = "-" + out
	}
	return out
}
