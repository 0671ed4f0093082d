package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/segyhp/loan-engine/internal/domain"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

const maxWatchRetries = 5

// LedgerTransaction is one recorded ledger movement.
type LedgerTransaction struct {
	ID          string                 `json:"id"`
	Account     string                 `json:"account"`
	Type        domain.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Description string                 `json:"description"`
	CreatedAt   time.Time              `json:"created_at"`
}

// RedisLedger keeps balances as decimal strings and transactions as a JSON
// list per account. Balance changes run under WATCH so concurrent writers
// never lose an update.
type RedisLedger struct {
	client *redis.Client
}

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func balanceKey(account string) string { return fmt.Sprintf("ledger:balance:%s", account) }
func txnKey(account string) string     { return fmt.Sprintf("ledger:txns:%s", account) }

// OpenAccount creates an account with an opening balance if it does not exist.
func (l *RedisLedger) OpenAccount(ctx context.Context, account string, opening decimal.Decimal) error {
	return l.client.SetNX(ctx, balanceKey(account), opening.String(), 0).Err()
}

func (l *RedisLedger) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	return readBalance(ctx, l.client, account)
}

type balanceReader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readBalance(ctx context.Context, c balanceReader, account string) (decimal.Decimal, error) {
	raw, err := c.Get(ctx, balanceKey(account)).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, customError.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (l *RedisLedger) Debit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("debit amount must be positive, got %s", amount)
	}
	return l.apply(ctx, account, func(balance decimal.Decimal) (decimal.Decimal, error) {
		if balance.LessThan(amount) {
			return decimal.Zero, customError.ErrLedgerNoFunds
		}
		return balance.Sub(amount), nil
	})
}

func (l *RedisLedger) Credit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("credit amount must be positive, got %s", amount)
	}
	return l.apply(ctx, account, func(balance decimal.Decimal) (decimal.Decimal, error) {
		return balance.Add(amount), nil
	})
}

func (l *RedisLedger) apply(ctx context.Context, account string, change func(decimal.Decimal) (decimal.Decimal, error)) (decimal.Decimal, error) {
	key := balanceKey(account)
	var updated decimal.Decimal

	txf := func(tx *redis.Tx) error {
		balance, err := readBalance(ctx, tx, account)
		if err != nil {
			return err
		}
		updated, err = change(balance)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated.String(), 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxWatchRetries; i++ {
		err := l.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return decimal.Zero, err
		}
		return updated, nil
	}
	return decimal.Zero, fmt.Errorf("ledger: balance of %s kept changing, gave up after %d attempts", account, maxWatchRetries)
}

func (l *RedisLedger) RecordTransaction(ctx context.Context, account string, txType domain.TransactionType, amount decimal.Decimal, description string) (string, error) {
	txn := LedgerTransaction{
		ID:          uuid.NewString(),
		Account:     account,
		Type:        txType,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	raw, err := json.Marshal(txn)
	if err != nil {
		return "", err
	}
	if err := l.client.RPush(ctx, txnKey(account), raw).Err(); err != nil {
		return "", err
	}
	return txn.ID, nil
}

// Transactions lists the recorded movements of account, oldest first.
func (l *RedisLedger) Transactions(ctx context.Context, account string) ([]LedgerTransaction, error) {
	raws, err := l.client.LRange(ctx, txnKey(account), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	txns := make([]LedgerTransaction, 0, len(raws))
	for _, raw := range raws {
		var txn LedgerTransaction
		if err := json.Unmarshal([]byte(raw), &txn); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}
