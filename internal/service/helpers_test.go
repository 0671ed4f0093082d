package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/segyhp/loan-engine/internal/adapter"
	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/repository"
)

const (
	borrowerAccount = "ACC-BORROWER"
	bankAccount     = "BANK-LOAN-POOL"
	goodPAN         = "ABCDE1234F"
)

func testPolicy(t *testing.T) config.Policy {
	tiers, err := config.ParseRateTiers("750:12:2000000,650:12.75:1000000,550:15:300000")
	require.NoError(t, err)
	return config.Policy{
		RateTiers:                  tiers,
		ForeclosureChargePercent:   decimal.NewFromInt(3),
		ForeclosureTaxPercent:      decimal.NewFromInt(18),
		GoldLTVRatio:               decimal.RequireFromString("0.75"),
		GoldInterestRate:           decimal.RequireFromString("9.50"),
		GoldWeightTolerancePercent: decimal.NewFromInt(2),
		MaxTenureMonths:            360,
		BankAccount:                bankAccount,
		DependencyTimeout:          200 * time.Millisecond,
	}
}

// fakeGoldRate is a mutable market rate.
type fakeGoldRate struct {
	mu   sync.Mutex
	rate decimal.Decimal
}

func (f *fakeGoldRate) CurrentRatePerGram(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rate, nil
}

func (f *fakeGoldRate) set(rate int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rate = decimal.NewFromInt(rate)
}

type fixture struct {
	svc    *LoanService
	repo   repository.LoanRepository
	ledger *adapter.MemoryLedger
	bureau *adapter.StaticCreditBureau
	gold   *fakeGoldRate

	mu    sync.Mutex
	clock time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	repo   repository.LoanRepository
	ledger Ledger
}

func withRepo(repo repository.LoanRepository) fixtureOption {
	return func(c *fixtureConfig) { c.repo = repo }
}

func withLedger(ledger Ledger) fixtureOption {
	return func(c *fixtureConfig) { c.ledger = ledger }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		ledger: adapter.NewMemoryLedger(),
		bureau: adapter.NewStaticCreditBureau(map[string]int{goodPAN: 780, "MIDPN5555M": 700, "LOWPN0000L": 480}),
		gold:   &fakeGoldRate{rate: decimal.NewFromInt(6000)},
		clock:  time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
	}

	cfg := &fixtureConfig{repo: repository.NewMemoryLoanRepository(), ledger: f.ledger}
	for _, opt := range opts {
		opt(cfg)
	}
	f.repo = cfg.repo

	ctx := context.Background()
	require.NoError(t, f.ledger.OpenAccount(ctx, borrowerAccount, decimal.Zero))
	require.NoError(t, f.ledger.OpenAccount(ctx, bankAccount, decimal.Zero))

	f.svc = NewLoanService(cfg.repo, cfg.ledger, f.bureau, f.gold, testPolicy(t), zaptest.NewLogger(t),
		WithClock(f.now))
	return f
}

func (f *fixture) now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clock
}

func (f *fixture) setClock(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = t
}

func (f *fixture) balance(t *testing.T, account string) decimal.Decimal {
	t.Helper()
	b, err := f.ledger.GetBalance(context.Background(), account)
	require.NoError(t, err)
	return b
}

func (f *fixture) fund(t *testing.T, account, amount string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.ledger.OpenAccount(ctx, account, decimal.Zero))
	_, err := f.ledger.Credit(ctx, account, decimal.RequireFromString(amount))
	require.NoError(t, err)
}

func personalRequest(principal string, tenure int) *domain.SubmitLoanRequest {
	return &domain.SubmitLoanRequest{
		BorrowerAccount: borrowerAccount,
		Category:        domain.CategoryPersonal,
		Principal:       decimal.RequireFromString(principal),
		TenureMonths:    tenure,
		Documents: domain.Documents{
			PAN:           goodPAN,
			IdentityProof: "aadhaar.pdf",
			IncomeProof:   "payslip.pdf",
		},
		Purpose: "wedding",
	}
}

func goldRequest(weight string, tenure int) *domain.SubmitLoanRequest {
	return &domain.SubmitLoanRequest{
		BorrowerAccount:     borrowerAccount,
		Category:            domain.CategoryGold,
		TenureMonths:        tenure,
		Documents:           domain.Documents{IdentityProof: "aadhaar.pdf"},
		DeclaredWeightGrams: decimal.RequireFromString(weight),
	}
}

// activeLoan submits and approves the 120,000 / 12% / 12 month reference loan.
func (f *fixture) activeLoan(t *testing.T) *domain.LoanResponse {
	t.Helper()
	ctx := context.Background()

	loan, err := f.svc.Submit(ctx, personalRequest("120000", 12))
	require.NoError(t, err)

	resp, err := f.svc.Approve(ctx, loan.ID, &domain.ApproveLoanRequest{ApproverID: "officer-1"})
	require.NoError(t, err)
	return resp
}

// mockLedger lets a test script ledger failures.
type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	args := m.Called(ctx, account)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockLedger) Debit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, account, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockLedger) Credit(ctx context.Context, account string, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, account, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *mockLedger) RecordTransaction(ctx context.Context, account string, txType domain.TransactionType, amount decimal.Decimal, description string) (string, error) {
	args := m.Called(ctx, account, txType, amount, description)
	return args.String(0), args.Error(1)
}

// flakyRepo fails selected commits while delegating everything else.
type flakyRepo struct {
	repository.LoanRepository
	failApproval   error
	failPayment    error
	failSettlement error

	// beforeSettlement runs just ahead of the delegated settlement commit,
	// standing in for a writer in another process.
	beforeSettlement func(repository.LoanRepository)
}

func (r *flakyRepo) SaveApproval(ctx context.Context, loan *domain.LoanApplication, schedule domain.Schedule) error {
	if r.failApproval != nil {
		return r.failApproval
	}
	return r.LoanRepository.SaveApproval(ctx, loan, schedule)
}

func (r *flakyRepo) SavePayment(ctx context.Context, entry *domain.EmiScheduleEntry, closed *domain.LoanApplication) error {
	if r.failPayment != nil {
		return r.failPayment
	}
	return r.LoanRepository.SavePayment(ctx, entry, closed)
}

func (r *flakyRepo) SaveSettlement(ctx context.Context, loan *domain.LoanApplication, skipped domain.Schedule) error {
	if r.failSettlement != nil {
		return r.failSettlement
	}
	if r.beforeSettlement != nil {
		r.beforeSettlement(r.LoanRepository)
	}
	return r.LoanRepository.SaveSettlement(ctx, loan, skipped)
}
