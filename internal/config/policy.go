package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RateTier maps a minimum credit score to an annual rate and a credit limit.
type RateTier struct {
	MinScore     int
	InterestRate decimal.Decimal
	CreditLimit  decimal.Decimal
}

// Policy is the business configuration passed explicitly into every loan
// operation.
type Policy struct {
	// RateTiers is ordered by MinScore, highest first. Scores below the last
	// tier are declined.
	RateTiers                  []RateTier
	ForeclosureChargePercent   decimal.Decimal
	ForeclosureTaxPercent      decimal.Decimal
	GoldLTVRatio               decimal.Decimal
	GoldInterestRate           decimal.Decimal
	GoldWeightTolerancePercent decimal.Decimal
	MaxTenureMonths            int
	BankAccount                string
	DependencyTimeout          time.Duration
}

// TierFor returns the first tier whose minimum the score meets.
func (p Policy) TierFor(score int) (RateTier, bool) {
	for _, tier := range p.RateTiers {
		if score >= tier.MinScore {
			return tier, true
		}
	}
	return RateTier{}, false
}

// ParseRateTiers parses "minScore:rate:limit" entries separated by commas.
func ParseRateTiers(raw string) ([]RateTier, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("at least one tier is required")
	}

	var tiers []RateTier
	seen := make(map[int]bool)
	for _, item := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(item), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("tier %q must be minScore:rate:limit", item)
		}

		score, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("tier %q: invalid score: %w", item, err)
		}
		if seen[score] {
			return nil, fmt.Errorf("duplicate tier for score %d", score)
		}
		seen[score] = true

		rate, err := decimal.NewFromString(parts[1])
		if err != nil || rate.IsNegative() {
			return nil, fmt.Errorf("tier %q: invalid rate", item)
		}
		limit, err := decimal.NewFromString(parts[2])
		if err != nil || !limit.IsPositive() {
			return nil, fmt.Errorf("tier %q: invalid credit limit", item)
		}

		tiers = append(tiers, RateTier{MinScore: score, InterestRate: rate, CreditLimit: limit})
	}

	sort.Slice(tiers, func(i, j int) bool { return tiers[i].MinScore > tiers[j].MinScore })
	return tiers, nil
}

// ParseCreditScores parses "PAN:score" entries separated by commas. An empty
// string yields an empty map.
func ParseCreditScores(raw string) (map[string]int, error) {
	scores := make(map[string]int)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return scores, nil
	}

	for _, item := range strings.Split(raw, ",") {
		pan, value, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok || pan == "" {
			return nil, fmt.Errorf("entry %q must be pan:score", item)
		}
		score, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("entry %q: invalid score: %w", item, err)
		}
		scores[strings.ToUpper(pan)] = score
	}
	return scores, nil
}
