package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
	"github.com/segyhp/loan-engine/pkg/utils"
)

// QuoteForeclosure prices early closure of loan on asOf.
//
// Outstanding principal is the principal of every open installment. Interest
// accrues on it at the loan rate, actual/365, from the due date of the last
// paid installment (or the disbursal date when nothing is paid yet) to asOf.
// The charge is a percentage of outstanding principal and tax a percentage
// of the charge.
func QuoteForeclosure(loan *domain.LoanApplication, schedule domain.Schedule, policy config.Policy, asOf time.Time) *domain.ForeclosureQuote {
	outstanding := schedule.OutstandingPrincipal()

	var since time.Time
	if last := schedule.LastPaid(); last != nil {
		since = last.DueDate
	} else if loan.ApprovedAt != nil {
		since = *loan.ApprovedAt
	} else {
		since = asOf
	}

	days := utils.DaysBetween(since, asOf)
	if days < 0 {
		days = 0
	}

	accrued := utils.DailyInterest(outstanding, loan.InterestRate, days)
	charge := utils.Percent(outstanding, policy.ForeclosureChargePercent)
	tax := utils.Percent(charge, policy.ForeclosureTaxPercent)

	return &domain.ForeclosureQuote{
		LoanID:               loan.ID,
		OutstandingPrincipal: outstanding,
		AccruedInterest:      accrued,
		AccruedDays:          days,
		Charge:               charge,
		Tax:                  tax,
		Total:                outstanding.Add(accrued).Add(charge).Add(tax),
		QuotedAt:             asOf,
	}
}

// Quote returns today's foreclosure payoff for an active loan. It takes no lock.
func (s *LoanService) Quote(ctx context.Context, loanID string) (*domain.ForeclosureQuote, error) {
	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanStatusActive {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "quote foreclosure for")
	}

	schedule, err := s.LoanRepo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return QuoteForeclosure(loan, schedule, s.policy, s.now()), nil
}

// Settle re-quotes under the loan lock, debits the payoff from the borrower,
// skips every open installment and moves the loan to Foreclosed. If the
// debit fails the loan stays Active.
func (s *LoanService) Settle(ctx context.Context, loanID, actorID string) (*domain.ForeclosureQuote, *domain.LoanApplication, error) {
	quote, loan, err := s.settle(ctx, loanID, actorID)
	if err != nil {
		metrics.ForeclosureSettlements.WithLabelValues(string(customError.KindOf(err))).Inc()
		return nil, nil, err
	}
	metrics.ForeclosureSettlements.WithLabelValues("settled").Inc()
	return quote, loan, nil
}

func (s *LoanService) settle(ctx context.Context, loanID, actorID string) (*domain.ForeclosureQuote, *domain.LoanApplication, error) {
	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	if loan.Status != domain.LoanStatusActive {
		return nil, nil, customError.WrapInvalidState(loanID, string(loan.Status), "foreclose")
	}

	schedule, err := s.LoanRepo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, nil, customError.WrapDatabaseError(err)
	}

	now := s.now()
	quote := QuoteForeclosure(loan, schedule, s.policy, now)

	balance, err := s.balance(ctx, loan.BorrowerAccount)
	if err != nil {
		return nil, nil, err
	}
	if balance.LessThan(quote.Total) {
		return nil, nil, customError.WrapInsufficientFunds(loan.BorrowerAccount, balance.StringFixed(2), quote.Total.StringFixed(2))
	}

	staged := loan.Clone()
	if err := staged.Foreclose(quote.Total, now); err != nil {
		return nil, nil, customError.WrapInvalidState(loanID, string(loan.Status), "foreclose")
	}

	skipped := schedule.Payable()

	settlement := &transfer{
		from:        loan.BorrowerAccount,
		to:          s.policy.BankAccount,
		amount:      quote.Total,
		txType:      domain.TransactionForeclosure,
		description: fmt.Sprintf("foreclosure of loan %s", loan.LoanAccountNumber),
	}
	if err := s.execute(ctx, settlement); err != nil {
		return nil, nil, err
	}

	if err := s.LoanRepo.SaveSettlement(ctx, staged, skipped); err != nil {
		s.undo(ctx, settlement, err)
		return nil, nil, storeError(loanID, err)
	}
	for _, e := range skipped {
		e.Status = domain.EntryStatusSkipped
	}
	s.invalidateSchedule(ctx, loanID)

	metrics.LoanTransitions.WithLabelValues(string(staged.Status), string(staged.Category)).Inc()
	s.logger.Info("loan foreclosed",
		zap.String("loan_id", loanID),
		zap.String("actor_id", actorID),
		zap.String("outstanding_principal", quote.OutstandingPrincipal.StringFixed(2)),
		zap.String("accrued_interest", quote.AccruedInterest.StringFixed(2)),
		zap.String("charge", quote.Charge.StringFixed(2)),
		zap.String("tax", quote.Tax.StringFixed(2)),
		zap.String("total", quote.Total.StringFixed(2)),
		zap.Int("skipped_installments", len(skipped)),
		zap.String("transaction_id", settlement.transactionID),
	)

	return quote, staged, nil
}
