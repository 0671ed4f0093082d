// Package bootstrap assembles the loan service from configuration. The HTTP
// server and the scheduler share it so both run against the same stores.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/adapter"
	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/repository"
	"github.com/segyhp/loan-engine/internal/service"
)

// App holds the service and the connections it was built on. DB and Redis
// are nil when the memory drivers leave them unused.
type App struct {
	Service *service.LoanService
	DB      *sqlx.DB
	Redis   *redis.Client
}

// Close releases every open connection.
func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}

// New connects the configured drivers and builds the loan service.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{}
	policy := cfg.Policy()

	var (
		repo   repository.LoanRepository
		bureau service.CreditBureau
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err := initDB(cfg)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		app.DB = db
		repo = repository.NewLoanRepository(db)
		bureau = adapter.NewSQLCreditBureau(db)
	default:
		logger.Warn("using in-memory loan store, state is lost on restart")
		repo = repository.NewMemoryLoanRepository()
		bureau = adapter.NewStaticCreditBureau(cfg.StaticCreditScores())
	}

	_, staticRate := cfg.GetGoldRatePerGram()
	if cfg.Ledger.Driver == "redis" || !staticRate {
		app.Redis = initRedis(cfg)
		if err := app.Redis.Ping(ctx).Err(); err != nil {
			app.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	var ledger service.Ledger
	switch cfg.Ledger.Driver {
	case "redis":
		l := adapter.NewRedisLedger(app.Redis)
		if err := l.OpenAccount(ctx, policy.BankAccount, decimal.Zero); err != nil {
			app.Close()
			return nil, fmt.Errorf("open bank account: %w", err)
		}
		ledger = l
	default:
		logger.Warn("using in-memory ledger, balances are lost on restart")
		l := adapter.NewMemoryLedger()
		if err := l.OpenAccount(ctx, policy.BankAccount, decimal.Zero); err != nil {
			return nil, fmt.Errorf("open bank account: %w", err)
		}
		ledger = l
	}

	var goldRates service.GoldRateProvider
	if rate, ok := cfg.GetGoldRatePerGram(); ok {
		goldRates = adapter.NewStaticGoldRate(rate)
	} else {
		goldRates = adapter.NewRedisGoldRate(app.Redis, cfg.Ledger.GoldRateKey)
	}

	cache := repository.NewNoopScheduleCache()
	if app.Redis != nil {
		cache = repository.NewRedisScheduleCache(app.Redis, cfg.GetCacheTTL())
	}

	app.Service = service.NewLoanService(repo, ledger, bureau, goldRates, policy, logger,
		service.WithScheduleCache(cache))

	logger.Info("loan service ready",
		zap.String("store", cfg.Database.Driver),
		zap.String("ledger", cfg.Ledger.Driver),
		zap.Bool("static_gold_rate", staticRate),
		zap.Bool("schedule_cache", app.Redis != nil),
	)
	return app, nil
}

func initDB(cfg *config.Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())

	return db, nil
}

func initRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
