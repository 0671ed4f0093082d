package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/config"
	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/metrics"
	"github.com/segyhp/loan-engine/internal/repository"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

type LoanService struct {
	LoanRepo   repository.LoanRepository
	cache      repository.ScheduleCache
	ledger     Ledger
	credit     *CreditResolver
	collateral *CollateralValuer
	policy     config.Policy
	logger     *zap.Logger
	locks      *loanLocks
	now        func() time.Time
}

// Option customises a LoanService.
type Option func(*LoanService)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *LoanService) { s.now = now }
}

// WithScheduleCache sets the read cache used by Schedule.
func WithScheduleCache(cache repository.ScheduleCache) Option {
	return func(s *LoanService) { s.cache = cache }
}

func NewLoanService(
	loanRepo repository.LoanRepository,
	ledger Ledger,
	bureau CreditBureau,
	goldRates GoldRateProvider,
	policy config.Policy,
	logger *zap.Logger,
	opts ...Option,
) *LoanService {
	s := &LoanService{
		LoanRepo:   loanRepo,
		cache:      repository.NewNoopScheduleCache(),
		ledger:     ledger,
		credit:     NewCreditResolver(bureau, policy, logger),
		collateral: NewCollateralValuer(goldRates, policy, logger),
		policy:     policy,
		logger:     logger,
		locks:      newLoanLocks(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit validates an application and stores it as Pending. The rate is
// resolved here to check eligibility but only locked in at approval.
func (s *LoanService) Submit(ctx context.Context, req *domain.SubmitLoanRequest) (*domain.LoanApplication, error) {
	if strings.TrimSpace(req.BorrowerAccount) == "" {
		return nil, customError.WrapValidation("borrower account is required")
	}
	if !req.Category.Valid() {
		return nil, customError.WrapValidation(fmt.Sprintf("unknown loan category %q", req.Category))
	}
	if req.TenureMonths <= 0 {
		return nil, customError.WrapValidation("tenure must be at least one month")
	}
	if s.policy.MaxTenureMonths > 0 && req.TenureMonths > s.policy.MaxTenureMonths {
		return nil, customError.WrapValidation(fmt.Sprintf("tenure cannot exceed %d months", s.policy.MaxTenureMonths))
	}
	if err := checkDocuments(req.Category, req.Documents); err != nil {
		return nil, err
	}

	details, err := req.Details()
	if err != nil {
		return nil, customError.WrapValidation(err.Error())
	}

	now := s.now()
	loan := &domain.LoanApplication{
		LoanCore: domain.LoanCore{
			ID:              uuid.NewString(),
			BorrowerAccount: req.BorrowerAccount,
			Category:        req.Category,
			TenureMonths:    req.TenureMonths,
			Status:          domain.LoanStatusPending,
			Documents:       req.Documents,
			AppliedAt:       now,
			Version:         1,
			UpdatedAt:       now,
		},
		Details: details,
	}

	if gold, ok := loan.Gold(); ok {
		if !gold.DeclaredWeightGrams.IsPositive() {
			return nil, customError.WrapValidation("declared gold weight must be greater than zero")
		}
		valuation, err := s.collateral.Quote(ctx, gold.DeclaredWeightGrams, now)
		if err != nil {
			return nil, err
		}
		loan.Principal = valuation.LoanAmount
		loan.InterestRate = s.policy.GoldInterestRate
	} else {
		if !req.Principal.IsPositive() {
			return nil, customError.WrapValidation("principal must be greater than zero")
		}
		profile, err := s.credit.Resolve(ctx, req.Documents.PAN)
		if err != nil {
			return nil, err
		}
		if req.Principal.GreaterThan(profile.CreditLimit) {
			return nil, customError.WrapCreditLimitExceeded(req.Principal.StringFixed(2), profile.CreditLimit.StringFixed(2))
		}
		loan.Principal = req.Principal
		loan.InterestRate = profile.InterestRate
		loan.CreditScore = profile.Score
	}

	if err := s.LoanRepo.Create(ctx, loan); err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	metrics.LoanTransitions.WithLabelValues(string(loan.Status), string(loan.Category)).Inc()
	s.logger.Info("loan submitted",
		zap.String("loan_id", loan.ID),
		zap.String("category", string(loan.Category)),
		zap.String("borrower_account", loan.BorrowerAccount),
		zap.String("principal", loan.Principal.StringFixed(2)),
	)

	return loan, nil
}

func checkDocuments(category domain.LoanCategory, docs domain.Documents) error {
	if strings.TrimSpace(docs.IdentityProof) == "" {
		return customError.WrapMissingDocument("identity proof")
	}
	if category.CollateralBacked() {
		return nil
	}
	if strings.TrimSpace(docs.PAN) == "" {
		return customError.WrapMissingDocument("PAN")
	}
	if strings.TrimSpace(docs.IncomeProof) == "" {
		return customError.WrapMissingDocument("income proof")
	}
	return nil
}

// Approve locks in the rate and principal, builds the schedule, disburses the
// principal and activates the loan. Either every step persists or none does.
func (s *LoanService) Approve(ctx context.Context, loanID string, req *domain.ApproveLoanRequest) (*domain.LoanResponse, error) {
	if strings.TrimSpace(req.ApproverID) == "" {
		return nil, customError.WrapValidation("approver id is required")
	}

	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != domain.LoanStatusPending {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "approve")
	}

	now := s.now()
	staged := loan.Clone()

	principal, rate, err := s.lockTerms(ctx, staged, req, now)
	if err != nil {
		return nil, err
	}

	schedule, err := GenerateSchedule(principal, rate, staged.TenureMonths, now)
	if err != nil {
		return nil, err
	}
	for _, entry := range schedule {
		entry.ID = uuid.NewString()
		entry.LoanID = loanID
		entry.CreatedAt = now
	}

	if err := staged.Approve(newAccountNumber(now), req.ApproverID, principal, rate, now); err != nil {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "approve")
	}
	if err := staged.Activate(now); err != nil {
		return nil, customError.WrapInvalidState(loanID, string(staged.Status), "activate")
	}

	disbursal := &transfer{
		to:          staged.BorrowerAccount,
		amount:      principal,
		txType:      domain.TransactionDisbursal,
		description: fmt.Sprintf("disbursal of loan %s", staged.LoanAccountNumber),
	}
	if err := s.execute(ctx, disbursal); err != nil {
		return nil, err
	}

	if err := s.LoanRepo.SaveApproval(ctx, staged, schedule); err != nil {
		s.undo(ctx, disbursal, err)
		return nil, storeError(loanID, err)
	}

	metrics.LoanTransitions.WithLabelValues(string(domain.LoanStatusApproved), string(staged.Category)).Inc()
	metrics.LoanTransitions.WithLabelValues(string(domain.LoanStatusActive), string(staged.Category)).Inc()
	s.logger.Info("loan approved",
		zap.String("loan_id", loanID),
		zap.String("loan_account_number", staged.LoanAccountNumber),
		zap.String("approver_id", req.ApproverID),
		zap.String("principal", principal.StringFixed(2)),
		zap.String("interest_rate", rate.String()),
		zap.Int("installments", len(schedule)),
		zap.String("transaction_id", disbursal.transactionID),
	)

	return &domain.LoanResponse{
		Loan:                 staged,
		Schedule:             schedule,
		OutstandingPrincipal: schedule.OutstandingPrincipal(),
	}, nil
}

// lockTerms resolves the principal and rate fixed at approval. Gold loans are
// re-valued on the verified weight at today's rate; the rest re-resolve the
// credit profile.
func (s *LoanService) lockTerms(ctx context.Context, loan *domain.LoanApplication, req *domain.ApproveLoanRequest, now time.Time) (decimal.Decimal, decimal.Decimal, error) {
	if gold, ok := loan.Gold(); ok {
		if !req.VerifiedWeightGrams.Valid {
			return decimal.Zero, decimal.Zero, customError.WrapValidation("verified weight is required for gold loans")
		}
		weight, err := s.collateral.LendingWeight(gold.DeclaredWeightGrams, req.VerifiedWeightGrams.Decimal)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		valuation, err := s.collateral.Quote(ctx, weight, now)
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		gold.VerifiedWeightGrams = req.VerifiedWeightGrams
		gold.VerifiedBy = req.ApproverID
		gold.Valuation = valuation
		return valuation.LoanAmount, s.policy.GoldInterestRate, nil
	}

	profile, err := s.credit.Resolve(ctx, loan.Documents.PAN)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if loan.Principal.GreaterThan(profile.CreditLimit) {
		return decimal.Zero, decimal.Zero, customError.WrapCreditLimitExceeded(loan.Principal.StringFixed(2), profile.CreditLimit.StringFixed(2))
	}
	loan.CreditScore = profile.Score
	return loan.Principal, profile.InterestRate, nil
}

// Reject closes a pending application with a reason.
func (s *LoanService) Reject(ctx context.Context, loanID string, req *domain.RejectLoanRequest) (*domain.LoanApplication, error) {
	if strings.TrimSpace(req.ApproverID) == "" || strings.TrimSpace(req.Reason) == "" {
		return nil, customError.WrapValidation("approver id and reason are required")
	}

	unlock := s.locks.Lock(loanID)
	defer unlock()

	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	staged := loan.Clone()
	if err := staged.Reject(req.ApproverID, req.Reason, s.now()); err != nil {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "reject")
	}
	if err := s.LoanRepo.Update(ctx, staged); err != nil {
		return nil, storeError(loanID, err)
	}

	metrics.LoanTransitions.WithLabelValues(string(staged.Status), string(staged.Category)).Inc()
	s.logger.Info("loan rejected",
		zap.String("loan_id", loanID),
		zap.String("approver_id", req.ApproverID),
		zap.String("reason", req.Reason),
	)
	return staged, nil
}

// Foreclose settles an active loan early and returns the settled quote.
func (s *LoanService) Foreclose(ctx context.Context, loanID, actorID string) (*domain.ForeclosureResponse, error) {
	quote, loan, err := s.Settle(ctx, loanID, actorID)
	if err != nil {
		return nil, err
	}
	return &domain.ForeclosureResponse{Quote: quote, Loan: loan}, nil
}

// MarkPaid closes an active loan whose schedule has no open installments.
// PayOne does this itself on the final installment; this entry point exists
// for reconciliation.
func (s *LoanService) MarkPaid(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
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
	if !schedule.AllSettled() {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "mark paid with open installments")
	}

	staged := loan.Clone()
	if err := staged.MarkPaid(s.now()); err != nil {
		return nil, customError.WrapInvalidState(loanID, string(loan.Status), "mark paid")
	}
	if err := s.LoanRepo.Update(ctx, staged); err != nil {
		return nil, storeError(loanID, err)
	}

	metrics.LoanTransitions.WithLabelValues(string(staged.Status), string(staged.Category)).Inc()
	s.logger.Info("loan marked paid", zap.String("loan_id", loanID))
	return staged, nil
}

// GetLoan returns the loan with its schedule and outstanding principal.
func (s *LoanService) GetLoan(ctx context.Context, loanID string) (*domain.LoanResponse, error) {
	loan, err := s.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	schedule, err := s.LoanRepo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}
	return &domain.LoanResponse{
		Loan:                 loan,
		Schedule:             schedule,
		OutstandingPrincipal: schedule.OutstandingPrincipal(),
	}, nil
}

// Schedule lists a loan's installments, served from the read cache when warm.
// A miss is filled under the loan lock, so no writer can invalidate between
// the store read and the cache write.
func (s *LoanService) Schedule(ctx context.Context, loanID string) (domain.Schedule, error) {
	if cached, ok, err := s.cache.Get(ctx, loanID); err != nil {
		s.logger.Warn("schedule cache read failed", zap.String("loan_id", loanID), zap.Error(err))
	} else if ok {
		return cached, nil
	}

	unlock := s.locks.Lock(loanID)
	defer unlock()

	if _, err := s.loadLoan(ctx, loanID); err != nil {
		return nil, err
	}
	schedule, err := s.LoanRepo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, customError.WrapDatabaseError(err)
	}

	if len(schedule) > 0 {
		if err := s.cache.Set(ctx, loanID, schedule); err != nil {
			s.logger.Warn("schedule cache write failed", zap.String("loan_id", loanID), zap.Error(err))
		}
	}
	return schedule, nil
}

// ResolveCreditProfile exposes the credit resolver for quoting.
func (s *LoanService) ResolveCreditProfile(ctx context.Context, pan string) (*domain.CreditProfile, error) {
	return s.credit.Resolve(ctx, pan)
}

// QuoteGold prices a prospective gold loan without persisting anything.
func (s *LoanService) QuoteGold(ctx context.Context, weightGrams decimal.Decimal) (*domain.CollateralValuation, error) {
	return s.collateral.Quote(ctx, weightGrams, s.now())
}

func (s *LoanService) loadLoan(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	loan, err := s.LoanRepo.GetByID(ctx, loanID)
	if err != nil {
		return nil, storeError(loanID, err)
	}
	return loan, nil
}

func (s *LoanService) invalidateSchedule(ctx context.Context, loanID string) {
	if err := s.cache.Invalidate(ctx, loanID); err != nil {
		s.logger.Warn("schedule cache invalidation failed", zap.String("loan_id", loanID), zap.Error(err))
	}
}

func storeError(loanID string, err error) error {
	switch {
	case errors.Is(err, customError.ErrLoanNotFound):
		return customError.WrapLoanNotFound(loanID)
	case errors.Is(err, customError.ErrConcurrentUpdate):
		return customError.WrapConcurrentUpdate(loanID)
	default:
		return customError.WrapDatabaseError(err)
	}
}

func newAccountNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return "LN" + at.Format("20060102") + suffix
}
