package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// PayOne collects a single installment from accountNumber. The balance is
// checked before the debit, and the entry update plus any loan closure are
// committed together after the ledger moves. A failed commit reverses the
// ledger movement.
func (s *LoanService) PayOne(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error) {
	receipt, err := s.payOne(ctx, entryID, accountNumber)
	if err != nil {
		metrics.EmiPayments.WithLabelValues(string(customError.KindOf(err))).Inc()
		return nil, err
	}
	metrics.EmiPayments.WithLabelValues("paid").Inc()
	return receipt, nil
}

func (s *LoanService) payOne(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, customError.WrapValidation("account number is required")
	}

	target, err := s.LoanRepo.GetEntry(ctx, entryID)
	if err != nil {
		if errors.Is(err, customError.ErrEntryNotFound) {
			return nil, customError.WrapEntryNotFound(entryID)
		}
		return nil, customError.WrapDatabaseError(err)
	}
	loanID := target.LoanID

	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.LoanRepo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	var entry *domain.EmiScheduleEntry
	for _, e := range schedule {
		if e.ID == entryID {
			entry = e
			break
		}
	}
	if entry == nil {
		return nil, customError.WrapEntryNotFound(entryID)
	}

	switch {
	case entry.Status == domain.EntryStatusPaid:
		return nil, customError.WrapAlreadyPaid(entryID)
	case !entry.Status.Payable():
		return nil, customError.WrapInvalidState(loanID, string(entry.Status), fmt.Sprintf("pay installment %d", entry.Sequence))
	case loan.Status != domain.LoanStatusActive:
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "collect installment")
	}

	before, err := s.balance(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	if before.LessThan(entry.Total) {
		return nil, customError.WrapInsufficientFunds(accountNumber, before.StringFixed(2), entry.Total.StringFixed(2))
	}

	payment := &transfer{
		from:        accountNumber,
		to:          s.policy.BankAccount,
		amount:      entry.Total,
		txType:      domain.TransactionEmiPayment,
		description: fmt.Sprintf("EMI %d of loan %s", entry.Sequence, loan.LoanAccountNumber),
	}
	if err := s.execute(ctx, payment); err != nil {
		return nil, err
	}

	now := s.now()
	entry.MarkPaid(accountNumber, payment.transactionID, before, payment.fromBalance, now)

	var closed *domain.LoanApplication
	if schedule.AllSettled() {
		closed = loan.Clone()
		if err := closed.MarkPaid(now); err != nil {
			s.undo(ctx, payment, err)
			return nil, customError.WrapInvalidState(loanID, string(loan.Status), "close")
		}
	}

	if err := s.LoanRepo.SavePayment(ctx, entry, closed); err != nil {
		s.undo(ctx, payment, err)
		return nil, storeError(loanID, err)
	}
	s.invalidateSchedule(ctx, loanID)

	receipt := &domain.PaymentReceipt{Entry: entry, LoanStatus: loan.Status}
	s.logger.Info("installment paid",
		zap.String("loan_id", loanID),
		zap.String("entry_id", entryID),
		zap.Int("sequence", entry.Sequence),
		zap.String("account", accountNumber),
		zap.String("amount", entry.Total.StringFixed(2)),
		zap.String("balance_before", before.StringFixed(2)),
		zap.String("balance_after", payment.fromBalance.StringFixed(2)),
	)

	if closed != nil {
		receipt.LoanStatus = closed.Status
		metrics.LoanTransitions.WithLabelValues(string(closed.Status), string(closed.Category)).Inc()
		s.logger.Info("loan fully repaid", zap.String("loan_id", loanID))
	}

	return receipt, nil
}

// PayMany collects the given installments one by one in the order given.
// Each payment re-reads the balance and commits on its own, so a failure
// stops nothing: earlier payments stay committed and later ones are still
// attempted.
func (s *LoanService) PayMany(ctx context.Context, accountNumber string, entryIDs []string) (*domain.BatchPaymentResult, error) {
	if strings.TrimSpace(accountNumber) == "" {
		return nil, customError.WrapValidation("account number is required")
	}
	if len(entryIDs) == 0 {
		return nil, customError.WrapValidation("at least one installment is required")
	}

	batch := s.NewPaymentBatch(accountNumber, entryIDs)
	for {
		if _, ok := batch.Next(ctx); !ok {
			break
		}
	}

	result := batch.Result()
	s.logger.Info("installment batch processed",
		zap.String("account", accountNumber),
		zap.Int("succeeded", result.SucceededCount),
		zap.Int("failed", result.FailedCount),
		zap.String("collected", result.TotalCollected.StringFixed(2)),
	)
	return result, nil
}
