package adapter

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	customError "github.com/segyhp/loan-engine/pkg/errors"
)

// SQLCreditBureau reads scores from the credit_scores table, which is kept
// in sync with the external bureau feed.
type SQLCreditBureau struct {
	db *sqlx.DB
}

func NewSQLCreditBureau(db *sqlx.DB) *SQLCreditBureau {
	return &SQLCreditBureau{db: db}
}

func (b *SQLCreditBureau) GetCreditScore(ctx context.Context, pan string) (int, error) {
	var score int
	err := b.db.GetContext(ctx, &score, `SELECT score FROM credit_scores WHERE pan = $1`, pan)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, customError.ErrCreditRecordEmpty
	}
	if err != nil {
		return 0, err
	}
	return score, nil
}

// StaticCreditBureau serves scores from memory.
type StaticCreditBureau struct {
	mu     sync.RWMutex
	scores map[string]int
}

func NewStaticCreditBureau(scores map[string]int) *StaticCreditBureau {
	b := &StaticCreditBureau{scores: make(map[string]int, len(scores))}
	for pan, score := range scores {
		b.scores[pan] = score
	}
	return b
}

func (b *StaticCreditBureau) Set(pan string, score int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scores[pan] = score
}

func (b *StaticCreditBureau) GetCreditScore(ctx context.Context, pan string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	score, ok := b.scores[pan]
	if !ok {
		return 0, customError.ErrCreditRecordEmpty
	}
	return score, nil
}
