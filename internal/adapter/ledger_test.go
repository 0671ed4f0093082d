package adapter

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

type testLedger interface {
	OpenAccount(ctx context.Context, account string, opening decimal.Decimal) error
	GetBalance(ctx context.Context, account string) (decimal.Decimal, error)
	Debit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error)
	Credit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error)
	RecordTransaction(ctx context.Context, account string, txType domain.TransactionType, amount decimal.Decimal, description string) (string, error)
	Transactions(ctx context.Context, account string) ([]LedgerTransaction, error)
}

func ledgers(t *testing.T) map[string]testLedger {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return map[string]testLedger{
		"redis":  NewRedisLedger(client),
		"memory": NewMemoryLedger(),
	}
}

func TestLedger_DebitCredit(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, ledger.OpenAccount(ctx, "ACC-1", decimal.RequireFromString("1000.50")))

			// opening twice keeps the first balance
			require.NoError(t, ledger.OpenAccount(ctx, "ACC-1", decimal.Zero))

			balance, err := ledger.Debit(ctx, "ACC-1", decimal.RequireFromString("200.25"))
			require.NoError(t, err)
			assert.Equal(t, "800.25", balance.StringFixed(2))

			balance, err = ledger.Credit(ctx, "ACC-1", decimal.RequireFromString("99.75"))
			require.NoError(t, err)
			assert.Equal(t, "900.00", balance.StringFixed(2))

			_, err = ledger.Debit(ctx, "ACC-1", decimal.RequireFromString("900.01"))
			assert.ErrorIs(t, err, customError.ErrLedgerNoFunds)

			balance, err = ledger.GetBalance(ctx, "ACC-1")
			require.NoError(t, err)
			assert.Equal(t, "900.00", balance.StringFixed(2))

			_, err = ledger.GetBalance(ctx, "missing")
			assert.ErrorIs(t, err, customError.ErrAccountNotFound)
			_, err = ledger.Credit(ctx, "missing", decimal.NewFromInt(1))
			assert.ErrorIs(t, err, customError.ErrAccountNotFound)
			_, err = ledger.Debit(ctx, "ACC-1", decimal.Zero)
			assert.Error(t, err)
		})
	}
}

func TestLedger_RecordTransaction(t *testing.T) {
	for name, ledger := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			id1, err := ledger.RecordTransaction(ctx, "ACC-1", domain.TransactionDisbursal, decimal.NewFromInt(45000), "disbursal")
			require.NoError(t, err)
			id2, err := ledger.RecordTransaction(ctx, "ACC-1", domain.TransactionEmiPayment, decimal.RequireFromString("3856.12"), "EMI 1")
			require.NoError(t, err)
			assert.NotEqual(t, id1, id2)

			txns, err := ledger.Transactions(ctx, "ACC-1")
			require.NoError(t, err)
			require.Len(t, txns, 2)
			assert.Equal(t, id1, txns[0].ID)
			assert.Equal(t, domain.TransactionEmiPayment, txns[1].Type)
			assert.Equal(t, "3856.12", txns[1].Amount.StringFixed(2))
		})
	}
}

func TestRedisLedger_ConcurrentDebits(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ledger := NewRedisLedger(client)
	ctx := context.Background()
	require.NoError(t, ledger.OpenAccount(ctx, "ACC-1", decimal.NewFromInt(100)))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := ledger.Debit(ctx, "ACC-1", decimal.NewFromInt(10)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	balance, err := ledger.GetBalance(ctx, "ACC-1")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(int64(100-10*succeeded))), "every successful debit must be reflected exactly once")
	assert.Positive(t, succeeded)
}

func TestMemoryLedger_CancelledContext(t *testing.T) {
	ledger := NewMemoryLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ledger.GetBalance(ctx, "ACC-1")
	assert.ErrorIs(t, err, context.Canceled)
}
