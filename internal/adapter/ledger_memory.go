package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// MemoryLedger is a process-local ledger for the memory driver and tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	txns     map[string][]LedgerTransaction
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]decimal.Decimal),
		txns:     make(map[string][]LedgerTransaction),
	}
}

func (l *MemoryLedger) OpenAccount(ctx context.Context, account string, opening decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.balances[account]; !ok {
		l.balances[account] = opening
	}
	return nil
}

func (l *MemoryLedger) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return decimal.Zero, customError.ErrAccountNotFound
	}
	return balance, nil
}

func (l *MemoryLedger) Debit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return decimal.Zero, customError.ErrAccountNotFound
	}
	if balance.LessThan(amount) {
		return decimal.Zero, customError.ErrLedgerNoFunds
	}
	l.balances[account] = balance.Sub(amount)
	return l.balances[account], nil
}

func (l *MemoryLedger) Credit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return decimal.Zero, customError.ErrAccountNotFound
	}
	l.balances[account] = balance.Add(amount)
	return l.balances[account], nil
}

func (l *MemoryLedger) RecordTransaction(ctx context.Context, account string, txType domain.TransactionType, amount decimal.Decimal, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	txn := LedgerTransaction{
		ID:          uuid.NewString(),
		Account:     account,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	l.txns[account] = append(l.txns[account], txn)
	return txn.ID, nil
}

func (l *MemoryLedger) Transactions(ctx context.Context, account string) ([]LedgerTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerTransaction, len(l.txns[account]))
	copy(out, l.txns[account])
	return out, nil
}
