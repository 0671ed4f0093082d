package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// transfer is one money movement on the ledger made for a loan. Either side
// may be empty: a disbursal only credits the borrower.
type transfer struct {
	from        string
	to          string
	amount      decimal.Decimal
	txType      domain.TransactionType
	description string

	debited       bool
	credited      bool
	fromBalance   decimal.Decimal
	transactionID string
}

func (t *transfer) account() string {
	if t.from != "" {
		return t.from
	}
	return t.to
}

func (s *LoanService) ledgerCall(ctx context.Context, op string, fn func(context.Context) error) error {
	callCtx, cancel := dependencyContext(ctx, s.policy.DependencyTimeout)
	defer cancel()

	start := time.Now()
	err := fn(callCtx)
	metrics.ObserveDependency("ledger", op, start)
	return err
}

// balance reads the current balance of accountNumber.
func (s *LoanService) balance(ctx context.Context, accountNumber string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.ledgerCall(ctx, "get_balance", func(ctx context.Context) error {
		var err error
		balance, err = s.ledger.GetBalance(ctx, accountNumber)
		return err
	})
	if err != nil {
		return decimal.Zero, customError.WrapLedgerError(accountNumber, err)
	}
	return balance, nil
}

// execute runs debit, credit and the transaction record in that order. When a
// later step fails the earlier ones are undone before returning.
func (s *LoanService) execute(ctx context.Context, t *transfer) error {
	if t.from != "" {
		err := s.ledgerCall(ctx, "debit", func(ctx context.Context) error {
			var err error
			t.fromBalance, err = s.ledger.Debit(ctx, t.from, t.amount)
			return err
		})
		if err != nil {
			return customError.WrapLedgerError(t.from, err)
		}
		t.debited = true
	}

	if t.to != "" {
		err := s.ledgerCall(ctx, "credit", func(ctx context.Context) error {
			_, err := s.ledger.Credit(ctx, t.to, t.amount)
			return err
		})
		if err != nil {
			s.undo(ctx, t, err)
			return customError.WrapLedgerError(t.to, err)
		}
		t.credited = true
	}

	err := s.ledgerCall(ctx, "record_transaction", func(ctx context.Context) error {
		var err error
		t.transactionID, err = s.ledger.RecordTransaction(ctx, t.account(), t.txType, t.amount, t.description)
		return err
	})
	if err != nil {
		s.undo(ctx, t, err)
		return customError.WrapLedgerError(t.account(), err)
	}

	s.logger.Info("ledger transfer completed",
		zap.String("type", string(t.txType)),
		zap.String("from", t.from),
		zap.String("to", t.to),
		zap.String("amount", t.amount.StringFixed(2)),
		zap.String("transaction_id", t.transactionID),
	)
	return nil
}

// undo reverses whatever parts of t already reached the ledger. It runs on a
// context detached from the caller's cancellation so an abandoned request
// still compensates.
func (s *LoanService) undo(ctx context.Context, t *transfer, cause error) {
	if !t.debited && !t.credited && t.transactionID == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	failed := false

	if t.credited {
		err := s.ledgerCall(ctx, "debit", func(ctx context.Context) error {
			_, err := s.ledger.Debit(ctx, t.to, t.amount)
			return err
		})
		if err != nil {
			failed = true
			s.logger.Error("compensating debit failed", zap.String("account", t.to), zap.Error(err))
		} else {
			t.credited = false
		}
	}

	if t.debited {
		err := s.ledgerCall(ctx, "credit", func(ctx context.Context) error {
			_, err := s.ledger.Credit(ctx, t.from, t.amount)
			return err
		})
		if err != nil {
			failed = true
			s.logger.Error("compensating credit failed", zap.String("account", t.from), zap.Error(err))
		} else {
			t.debited = false
		}
	}

	if t.transactionID != "" {
		err := s.ledgerCall(ctx, "record_transaction", func(ctx context.Context) error {
			_, err := s.ledger.RecordTransaction(ctx, t.account(), domain.TransactionReversal, t.amount,
				"reversal of "+t.transactionID+": "+cause.Error())
			return err
		})
		if err != nil {
			failed = true
			s.logger.Error("reversal record failed", zap.String("transaction_id", t.transactionID), zap.Error(err))
		}
	}

	if failed {
		s.logger.Error("ledger compensation incomplete, manual reconciliation required",
			zap.String("type", string(t.txType)),
			zap.String("from", t.from),
			zap.String("to", t.to),
			zap.String("amount", t.amount.StringFixed(2)),
			zap.NamedError("cause", cause),
		)
		return
	}

	s.logger.Warn("ledger transfer reversed",
		zap.String("type", string(t.txType)),
		zap.String("account", t.account()),
		zap.String("amount", t.amount.StringFixed(2)),
		zap.NamedError("cause", cause),
	)
}
