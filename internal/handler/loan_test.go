package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/internal/handler"
	customError "github.com/segyhp/loan-engine/pkg/errors"
)

type MockLoanService struct {
	mock.Mock
}

func (m *MockLoanService) Submit(ctx context.Context, req *domain.SubmitLoanRequest) (*domain.LoanApplication, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanApplication), args.Error(1)
}

func (m *MockLoanService) GetLoan(ctx context.Context, loanID string) (*domain.LoanResponse, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanResponse), args.Error(1)
}

func (m *MockLoanService) Approve(ctx context.Context, loanID string, req *domain.ApproveLoanRequest) (*domain.LoanResponse, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanResponse), args.Error(1)
}

func (m *MockLoanService) Reject(ctx context.Context, loanID string, req *domain.RejectLoanRequest) (*domain.LoanApplication, error) {
	args := m.Called(ctx, loanID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanApplication), args.Error(1)
}

func (m *MockLoanService) MarkPaid(ctx context.Context, loanID string) (*domain.LoanApplication, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LoanApplication), args.Error(1)
}

func (m *MockLoanService) Schedule(ctx context.Context, loanID string) (domain.Schedule, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.Schedule), args.Error(1)
}

func (m *MockLoanService) Quote(ctx context.Context, loanID string) (*domain.ForeclosureQuote, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ForeclosureQuote), args.Error(1)
}

func (m *MockLoanService) Foreclose(ctx context.Context, loanID, actorID string) (*domain.ForeclosureResponse, error) {
	args := m.Called(ctx, loanID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ForeclosureResponse), args.Error(1)
}

func (m *MockLoanService) PayOne(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error) {
	args := m.Called(ctx, entryID, accountNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PaymentReceipt), args.Error(1)
}

func (m *MockLoanService) PayMany(ctx context.Context, accountNumber string, entryIDs []string) (*domain.BatchPaymentResult, error) {
	args := m.Called(ctx, accountNumber, entryIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BatchPaymentResult), args.Error(1)
}

func (m *MockLoanService) ResolveCreditProfile(ctx context.Context, pan string) (*domain.CreditProfile, error) {
	args := m.Called(ctx, pan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CreditProfile), args.Error(1)
}

func (m *MockLoanService) QuoteGold(ctx context.Context, weightGrams decimal.Decimal) (*domain.CollateralValuation, error) {
	args := m.Called(ctx, weightGrams)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CollateralValuation), args.Error(1)
}

func newRouter(t *testing.T, svc *MockLoanService) *mux.Router {
	router := mux.NewRouter()
	handler.NewLoanHandler(svc, zaptest.NewLogger(t)).Register(router.PathPrefix("/api/v1").Subrouter())
	return router
}

type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestLoanHandler_Submit(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		setupMock      func(*MockLoanService)
		expectedStatus int
		expectedCode   string
	}{
		{
			name: "created",
			body: map[string]interface{}{
				"borrower_account": "ACC-1",
				"category":         "personal",
				"principal":        "120000",
				"tenure_months":    12,
				"documents":        map[string]string{"pan": "ABCDE1234F", "identity_proof": "id.pdf", "income_proof": "pay.pdf"},
			},
			setupMock: func(svc *MockLoanService) {
				svc.On("Submit", mock.Anything, mock.MatchedBy(func(req *domain.SubmitLoanRequest) bool {
					return req.Principal.Equal(decimal.NewFromInt(120000)) && req.Category == domain.CategoryPersonal
				})).Return(&domain.LoanApplication{
					LoanCore: domain.LoanCore{ID: "loan-1", Category: domain.CategoryPersonal, Status: domain.LoanStatusPending},
					Details:  &domain.PersonalDetails{},
				}, nil).Once()
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "malformed body",
			body:           "{not json",
			setupMock:      func(svc *MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "unknown category fails validation",
			body: map[string]interface{}{
				"borrower_account": "ACC-1",
				"category":         "auto",
				"tenure_months":    12,
			},
			setupMock:      func(svc *MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "negative principal fails validation",
			body: map[string]interface{}{
				"borrower_account": "ACC-1",
				"category":         "home",
				"principal":        "-5",
				"tenure_months":    12,
			},
			setupMock:      func(svc *MockLoanService) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "credit limit exceeded",
			body: map[string]interface{}{
				"borrower_account": "ACC-1",
				"category":         "personal",
				"principal":        "9000000",
				"tenure_months":    12,
			},
			setupMock: func(svc *MockLoanService) {
				svc.On("Submit", mock.Anything, mock.Anything).
					Return(nil, customError.WrapCreditLimitExceeded("9000000.00", "2000000.00")).Once()
			},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   customError.ErrCodeCreditLimitExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockLoanService{}
			tt.setupMock(svc)

			w, env := do(t, newRouter(t, svc), http.MethodPost, "/api/v1/loans", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, env.Code)
			if tt.expectedStatus == http.StatusCreated {
				var loan domain.LoanApplication
				require.NoError(t, json.Unmarshal(env.Data, &loan))
				assert.Equal(t, "loan-1", loan.ID)
				assert.IsType(t, &domain.PersonalDetails{}, loan.Details)
			}
			svc.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_ErrorKindsMapToStatus(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{"not found", customError.WrapLoanNotFound("loan-9"), http.StatusNotFound},
		{"invalid state", customError.WrapInvalidState("loan-9", "pending", "foreclose"), http.StatusConflict},
		{"insufficient funds", customError.WrapInsufficientFunds("ACC-1", "1.00", "2.00"), http.StatusUnprocessableEntity},
		{"ledger timeout", customError.WrapLedgerError("ACC-1", context.DeadlineExceeded), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockLoanService{}
			svc.On("Foreclose", mock.Anything, "loan-9", "officer-7").Return(nil, tt.err).Once()

			w, env := do(t, newRouter(t, svc), http.MethodPost, "/api/v1/loans/loan-9/foreclose", map[string]string{"actor_id": "officer-7"})

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestLoanHandler_Approve(t *testing.T) {
	svc := &MockLoanService{}
	svc.On("Approve", mock.Anything, "loan-1", mock.MatchedBy(func(req *domain.ApproveLoanRequest) bool {
		return req.ApproverID == "officer-1" &&
			req.VerifiedWeightGrams.Valid &&
			req.VerifiedWeightGrams.Decimal.Equal(decimal.RequireFromString("9.85"))
	})).Return(&domain.LoanResponse{
		Loan: &domain.LoanApplication{LoanCore: domain.LoanCore{ID: "loan-1", Category: domain.CategoryGold, Status: domain.LoanStatusActive}},
	}, nil).Once()

	router := newRouter(t, svc)
	w, _ := do(t, router, http.MethodPost, "/api/v1/loans/loan-1/approve",
		map[string]interface{}{"approver_id": "officer-1", "verified_weight_grams": "9.85"})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, router, http.MethodPost, "/api/v1/loans/loan-1/approve", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestLoanHandler_Payments(t *testing.T) {
	svc := &MockLoanService{}
	paidAt := time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC)
	svc.On("PayOne", mock.Anything, "entry-1", "ACC-1").Return(&domain.PaymentReceipt{
		Entry:      &domain.EmiScheduleEntry{ID: "entry-1", Status: domain.EntryStatusPaid, PaidAt: &paidAt, Total: decimal.RequireFromString("10661.85")},
		LoanStatus: domain.LoanStatusActive,
	}, nil).Once()
	svc.On("PayOne", mock.Anything, "entry-1", "ACC-1").Return(nil, customError.WrapAlreadyPaid("entry-1")).Once()

	batch := &domain.BatchPaymentResult{}
	batch.Add(domain.EntryPaymentResult{EntryID: "entry-2", Err: customError.WrapInsufficientFunds("ACC-1", "0.00", "10661.85")})
	svc.On("PayMany", mock.Anything, "ACC-1", []string{"entry-2"}).Return(batch, nil).Once()

	router := newRouter(t, svc)

	w, env := do(t, router, http.MethodPost, "/api/v1/emis/entry-1/pay", map[string]string{"account_number": "ACC-1"})
	assert.Equal(t, http.StatusOK, w.Code)
	var receipt domain.PaymentReceipt
	require.NoError(t, json.Unmarshal(env.Data, &receipt))
	assert.Equal(t, domain.EntryStatusPaid, receipt.Entry.Status)

	w, env = do(t, router, http.MethodPost, "/api/v1/emis/entry-1/pay", map[string]string{"account_number": "ACC-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, customError.ErrCodeAlreadyPaid, env.Code)

	w, env = do(t, router, http.MethodPost, "/api/v1/emis/pay", map[string]interface{}{"account_number": "ACC-1", "entry_ids": []string{"entry-2"}})
	assert.Equal(t, http.StatusOK, w.Code)
	var result domain.BatchPaymentResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.FailedCount)
	assert.Contains(t, result.PerEntryErrors, "entry-2")

	w, _ = do(t, router, http.MethodPost, "/api/v1/emis/pay", map[string]interface{}{"account_number": "ACC-1", "entry_ids": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertExpectations(t)
}

func TestLoanHandler_Quotes(t *testing.T) {
	svc := &MockLoanService{}
	svc.On("QuoteGold", mock.Anything, mock.MatchedBy(func(w decimal.Decimal) bool {
		return w.Equal(decimal.NewFromInt(10))
	})).Return(&domain.CollateralValuation{LoanAmount: decimal.NewFromInt(45000)}, nil).Once()
	svc.On("ResolveCreditProfile", mock.Anything, "NOREC0000N").Return(nil, customError.WrapProfileNotFound("NOREC0000N")).Once()
	svc.On("Schedule", mock.Anything, "loan-1").Return(domain.Schedule{{ID: "entry-1", Sequence: 1}}, nil).Once()

	router := newRouter(t, svc)

	w, env := do(t, router, http.MethodPost, "/api/v1/gold/quote", map[string]string{"weight_grams": "10"})
	assert.Equal(t, http.StatusOK, w.Code)
	var valuation domain.CollateralValuation
	require.NoError(t, json.Unmarshal(env.Data, &valuation))
	assert.True(t, valuation.LoanAmount.Equal(decimal.NewFromInt(45000)))

	w, _ = do(t, router, http.MethodPost, "/api/v1/gold/quote", map[string]string{"weight_grams": "0"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/credit-profiles/NOREC0000N", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, customError.ErrCodeProfileNotFound, env.Code)

	w, env = do(t, router, http.MethodGet, "/api/v1/loans/loan-1/schedule", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var schedule domain.ScheduleResponse
	require.NoError(t, json.Unmarshal(env.Data, &schedule))
	assert.Equal(t, "loan-1", schedule.LoanID)
	assert.Len(t, schedule.Schedule, 1)

	svc.AssertExpectations(t)
}
