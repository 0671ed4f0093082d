package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the currency minor unit precision.
const MoneyPlaces = 2

var (
	hundred       = decimal.NewFromInt(100)
	twelveHundred = decimal.NewFromInt(1200)
	daysInYear    = decimal.NewFromInt(365)
)

// RoundMoney rounds to the currency minor unit, half away from zero.
// Amounts handled here are never negative, so this is round-half-up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// MonthlyRate converts an annual percentage rate to a monthly fraction (r = annual / 1200).
func MonthlyRate(annualRatePercent decimal.Decimal) decimal.Decimal {
	return annualRatePercent.Div(twelveHundred)
}

// Percent returns pct% of amount, rounded to the minor unit.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundMoney(amount.Mul(pct).Div(hundred))
}

// DailyInterest computes simple interest on principal for the given number of
// days at an annual percentage rate, on an actual/365 basis.
func DailyInterest(principal, annualRatePercent decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return RoundMoney(principal.
		Mul(annualRatePercent).
		Div(hundred).
		Mul(decimal.NewFromInt(int64(days))).
		Div(daysInYear))
}

// CalculateDueDate calculates the due date for a specific installment.
// Installment 1 is due one month after the start date. A start day past the
// end of the target month lands on that month's last day.
func CalculateDueDate(startDate time.Time, installment int) time.Time {
	y, m, d := startDate.Date()
	hour, min, sec := startDate.Clock()

	first := time.Date(y, m, 1, 0, 0, 0, 0, startDate.Location()).AddDate(0, installment, 0)
	if last := daysIn(first.Year(), first.Month(), startDate.Location()); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, hour, min, sec, startDate.Nanosecond(), startDate.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// DaysBetween counts whole calendar days from a to b (negative when b is before a).
func DaysBetween(a, b time.Time) int {
	a = time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	b = time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

// IsDateOverdue checks if a due date is strictly before asOf's calendar day.
func IsDateOverdue(dueDate, asOf time.Time) bool {
	return DaysBetween(dueDate, asOf) > 0
}
