package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// MarkOverdue flags pending installments of active loans whose due date is
// before asOf's calendar day. Overdue installments stay payable.
func (s *LoanService) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	ids, err := s.LoanRepo.ListIDsByStatus(ctx, domain.LoanStatusActive)
	if err != nil {
		return 0, customError.WrapDatabaseError(err)
	}

	var total int64
	for _, loanID := range ids {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n, err := s.markLoanOverdue(ctx, loanID, asOf)
		if err != nil {
			s.logger.Error("marking overdue installments failed", zap.String("loan_id", loanID), zap.Error(err))
			continue
		}
		if n > 0 {
			s.logger.Info("installments marked overdue", zap.String("loan_id", loanID), zap.Int64("count", n))
		}
		total += n
	}

	metrics.OverdueEntries.Add(float64(total))
	return total, nil
}

func (s *LoanService) markLoanOverdue(ctx context.Context, loanID string, asOf time.Time) (int64, error) {
	unlock := s.locks.Lock(loanID)
	defer unlock()

	n, err := s.LoanRepo.MarkOverdue(ctx, loanID, asOf)
	if n > 0 {
		s.invalidateSchedule(ctx, loanID)
	}
	return n, err
}

// UpcomingDues lists pending installments of active loans due from asOf's
// calendar day up to asOf+window.
func (s *LoanService) UpcomingDues(ctx context.Context, asOf time.Time, window time.Duration) (domain.Schedule, error) {
	y, m, d := asOf.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, asOf.Location())

	due, err := s.LoanRepo.ListDueBetween(ctx, from, asOf.Add(window))
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return due, nil
}
