package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NanoPerUnit is the number of indivisible nano units in one whole unit
const NanoPerUnit = 1_000_000_000

// MaxStake bounds a per-player stake so that a pot never overflows int64
const MaxStake Amount = math.MaxInt64 / 4

// Amount is a fixed-point quantity of value in nano units.
// It is rendered as a decimal string so clients never see float drift.
type Amount int64

// AmountFromUnits returns the amount for a whole number of units
func AmountFromUnits(units int64) Amount {
	return Amount(units * NanoPerUnit)
}

// ParseAmount parses a non-negative decimal string with up to nine
// fractional digits, e.g. "5", "0.25", "12.000000001".
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidRequest)
	}

	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" || (hasFrac && frac == "") {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrInvalidRequest, s)
	}
	if len(frac) > 9 {
		return 0, fmt.Errorf("%w: amount %q has more than 9 decimal places", ErrInvalidRequest, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return 0, fmt.Errorf("%w: malformed amount %q", ErrInvalidRequest, s)
	}

	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || units > math.MaxInt64/NanoPerUnit {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidRequest, s)
	}

	var nano int64
	if frac != "" {
		frac += strings.Repeat("0", 9-len(frac))
		nano, _ = strconv.ParseInt(frac, 10, 64)
	}

	total := units*NanoPerUnit + nano
	if total < 0 {
		return 0, fmt.Errorf("%w: amount %q out of range", ErrInvalidRequest, s)
	}
	return Amount(total), nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Nano returns the raw nano-unit value
func (a Amount) Nano() int64 {
	return int64(a)
}

// String renders the amount as a decimal without trailing zeros
func (a Amount) String() string {
	sign := ""
	v := int64(a)
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := v / NanoPerUnit
	frac := v % NanoPerUnit
	if frac == 0 {
		return sign + strconv.FormatInt(whole, 10)
	}
	fracStr := strings.TrimRight(fmt.Sprintf("%09d", frac), "0")
	return sign + strconv.FormatInt(whole, 10) + "." + fracStr
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Bare JSON numbers are accepted as well
		s = string(data)
	}
	neg := strings.HasPrefix(s, "-")
	parsed, err := ParseAmount(strings.TrimPrefix(s, "-"))
	if err != nil {
		return err
	}
	if neg {
		parsed = -parsed
	}
	*a = parsed
	return nil
}
