package domain

import (
	"math"
	"math/bits"
	"strconv"
	"strings"

	"webcash-wallet/pkg/apperror"
)

// Amount counts indivisible webcash units. One webcash is UnitsPerWebcash units.
type Amount int64

// UnitsPerWebcash is the number of units in one whole webcash.
const UnitsPerWebcash Amount = 100_000_000

const webcashDecimals = 8

// Add returns a+b or a VAL_003 error on overflow.
func (a Amount) Add(b Amount) (Amount, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, apperror.ErrAmountOverflow()
	}
	return a + b, nil
}

// Sub returns a-b or a VAL_003 error on overflow.
func (a Amount) Sub(b Amount) (Amount, error) {
	if (b < 0 && a > math.MaxInt64+b) || (b > 0 && a < math.MinInt64+b) {
		return 0, apperror.ErrAmountOverflow()
	}
	return a - b, nil
}

// Sum adds all amounts, failing on the first overflow.
func Sum(amounts ...Amount) (Amount, error) {
	var total Amount
	for _, a := range amounts {
		var err error
		if total, err = total.Add(a); err != nil {
			return 0, err
		}
	}
	return total, nil
}

// Cmp returns -1, 0 or +1.
func (a Amount) Cmp(b Amount) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// String renders the canonical decimal unit count.
func (a Amount) String() string {
	return strconv.FormatInt(int64(a), 10)
}

// ParseAmount parses the canonical decimal unit count produced by String.
func ParseAmount(s string) (Amount, error) {
	if s == "" || s[0] == '+' {
		return 0, apperror.ErrInvalidAmount("amount must be a decimal integer")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return 0, apperror.ErrAmountOverflow()
		}
		return 0, apperror.ErrInvalidAmount("amount must be a decimal integer")
	}
	return Amount(v), nil
}

// FormatWebcash renders a as a webcash decimal with up to eight fractional
// digits and no trailing zeros, e.g. 150000000 -> "1.5".
func FormatWebcash(a Amount) string {
	neg := a < 0
	u := uint64(a)
	if neg {
		u = -u
	}
	whole := u / uint64(UnitsPerWebcash)
	frac := u % uint64(UnitsPerWebcash)

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(strconv.FormatUint(whole, 10))
	if frac != 0 {
		f := strconv.FormatUint(frac, 10)
		f = strings.Repeat("0", webcashDecimals-len(f)) + f
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(f, "0"))
	}
	return b.String()
}

// ParseWebcash parses a webcash decimal such as "1.5" or "0.00000001".
func ParseWebcash(s string) (Amount, error) {
	invalid := apperror.ErrInvalidAmount("amount must be a webcash decimal with at most 8 fractional digits")

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	wholeStr, fracStr, hasDot := strings.Cut(s, ".")
	if wholeStr == "" || !allDigits(wholeStr) {
		return 0, invalid
	}
	if hasDot && (fracStr == "" || len(fracStr) > webcashDecimals || !allDigits(fracStr)) {
		return 0, invalid
	}

	whole, err := strconv.ParseUint(wholeStr, 10, 64)
	if err != nil {
		return 0, apperror.ErrAmountOverflow()
	}
	var frac uint64
	if fracStr != "" {
		frac, _ = strconv.ParseUint(fracStr+strings.Repeat("0", webcashDecimals-len(fracStr)), 10, 64)
	}

	hi, lo := bits.Mul64(whole, uint64(UnitsPerWebcash))
	if hi != 0 {
		return 0, apperror.ErrAmountOverflow()
	}
	u, carry := bits.Add64(lo, frac, 0)
	if carry != 0 {
		return 0, apperror.ErrAmountOverflow()
	}

	if neg {
		if u > uint64(math.MaxInt64)+1 {
			return 0, apperror.ErrAmountOverflow()
		}
		return Amount(-u), nil
	}
	if u > math.MaxInt64 {
		return 0, apperror.ErrAmountOverflow()
	}
	return Amount(u), nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
