package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

const (
	minBureauScore = 300
	maxBureauScore = 900
)

// CreditResolver derives a CreditProfile from the bureau score and the rate
// tiers. Profiles are recomputed on every call.
type CreditResolver struct {
	bureau CreditBureau
	policy config.Policy
	logger *zap.Logger
}

func NewCreditResolver(bureau CreditBureau, policy config.Policy, logger *zap.Logger) *CreditResolver {
	return &CreditResolver{
		bureau: bureau,
		policy: policy,
		logger: logger,
	}
}

// Resolve looks up the score for pan and maps it to a rate and credit limit.
// A missing record is ProfileNotFound and a bureau failure or timeout is
// DependencyUnavailable; neither yields a default rate.
func (r *CreditResolver) Resolve(ctx context.Context, pan string) (*domain.CreditProfile, error) {
	pan = strings.ToUpper(strings.TrimSpace(pan))
	if pan == "" {
		return nil, customError.WrapMissingDocument("PAN")
	}

	callCtx, cancel := dependencyContext(ctx, r.policy.DependencyTimeout)
	defer cancel()

	start := time.Now()
	score, err := r.bureau.GetCreditScore(callCtx, pan)
	metrics.ObserveDependency("credit_bureau", "get_score", start)
	if err != nil {
		if errors.Is(err, customError.ErrCreditRecordEmpty) {
			return nil, customError.WrapProfileNotFound(pan)
		}
		r.logger.Warn("credit bureau lookup failed", zap.String("pan", pan), zap.Error(err))
		return nil, customError.WrapDependencyUnavailable("credit bureau", err)
	}

	if score < minBureauScore || score > maxBureauScore {
		return nil, customError.WrapDependencyUnavailable(
			"credit bureau",
			fmt.Errorf("score %d outside %d-%d", score, minBureauScore, maxBureauScore),
		)
	}

	tier, ok := r.policy.TierFor(score)
	if !ok {
		return nil, customError.WrapCreditDeclined(score)
	}

	return &domain.CreditProfile{
		PAN:          pan,
		Score:        score,
		InterestRate: tier.InterestRate,
		CreditLimit:  tier.CreditLimit,
	}, nil
}

// dependencyContext bounds a call to an external collaborator. A zero
// timeout leaves the caller's context unchanged.
func dependencyContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
