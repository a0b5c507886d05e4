package schedule

import "fmt"

// Money is an amount in cents.
type Money int64

func Dollars(d int64) Money {
	return Money(d * 100)
}

func (m Money) String() string {
	sign := ""
	cents := int64(m)
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

// Percent returns pct percent of m, rounded down to the cent.
func (m Money) Percent(pct int) Money {
	return Money(int64(m) * int64(pct) / 100)
}
