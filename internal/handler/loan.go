package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/segyhp/loan-engine/internal/domain"
	"github.com/segyhp/loan-engine/pkg/response"
)

// LoanService is the loan engine as seen by the HTTP layer.
type LoanService interface {
	Submit(ctx context.Context, req *domain.SubmitLoanRequest) (*domain.LoanApplication, error)
	GetLoan(ctx context.Context, loanID string) (*domain.LoanResponse, error)
	Approve(ctx context.Context, loanID string, req *domain.ApproveLoanRequest) (*domain.LoanResponse, error)
	Reject(ctx context.Context, loanID string, req *domain.RejectLoanRequest) (*domain.LoanApplication, error)
	MarkPaid(ctx context.Context, loanID string) (*domain.LoanApplication, error)
	Schedule(ctx context.Context, loanID string) (domain.Schedule, error)
	Quote(ctx context.Context, loanID string) (*domain.ForeclosureQuote, error)
	Foreclose(ctx context.Context, loanID, actorID string) (*domain.ForeclosureResponse, error)
	PayOne(ctx context.Context, entryID, accountNumber string) (*domain.PaymentReceipt, error)
	PayMany(ctx context.Context, accountNumber string, entryIDs []string) (*domain.BatchPaymentResult, error)
	ResolveCreditProfile(ctx context.Context, pan string) (*domain.CreditProfile, error)
	QuoteGold(ctx context.Context, weightGrams decimal.Decimal) (*domain.CollateralValuation, error)
}

type LoanHandler struct {
	service   LoanService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewLoanHandler(service LoanService, logger *zap.Logger) *LoanHandler {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{}, decimal.NullDecimal{})

	return &LoanHandler{
		service:   service,
		validator: v,
		logger:    logger,
	}
}

// decimalValue lets numeric validation tags apply to decimal fields.
func decimalValue(field reflect.Value) interface{} {
	switch v := field.Interface().(type) {
	case decimal.Decimal:
		return v.InexactFloat64()
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		return v.Decimal.InexactFloat64()
	}
	return nil
}

// Register mounts the loan routes on an API subrouter.
func (h *LoanHandler) Register(api *mux.Router) {
	api.HandleFunc("/loans", h.Submit).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}", h.GetLoan).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/approve", h.Approve).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/reject", h.Reject).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/close", h.MarkPaid).Methods(http.MethodPost)
	api.HandleFunc("/loans/{loanId}/schedule", h.Schedule).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/foreclosure", h.QuoteForeclosure).Methods(http.MethodGet)
	api.HandleFunc("/loans/{loanId}/foreclose", h.Foreclose).Methods(http.MethodPost)
	api.HandleFunc("/emis/pay", h.PayMany).Methods(http.MethodPost)
	api.HandleFunc("/emis/{entryId}/pay", h.PayOne).Methods(http.MethodPost)
	api.HandleFunc("/credit-profiles/{pan}", h.CreditProfile).Methods(http.MethodGet)
	api.HandleFunc("/gold/quote", h.QuoteGold).Methods(http.MethodPost)
}

// decode reads and validates a JSON body. It writes the 400 itself and
// reports false when the request is unusable.
func (h *LoanHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		response.BadRequest(w, "Invalid request body", err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		response.BadRequest(w, "Validation failed", err)
		return false
	}
	return true
}

func (h *LoanHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	response.Fail(w, err)
}

func (h *LoanHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.SubmitLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.service.Submit(r.Context(), &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Created(w, loan)
}

func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.GetLoan(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req domain.ApproveLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.service.Approve(r.Context(), mux.Vars(r)["loanId"], &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req domain.RejectLoanRequest
	if !h.decode(w, r, &req) {
		return
	}

	loan, err := h.service.Reject(r.Context(), mux.Vars(r)["loanId"], &req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	loan, err := h.service.MarkPaid(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, loan)
}

func (h *LoanHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	loanID := mux.Vars(r)["loanId"]
	schedule, err := h.service.Schedule(r.Context(), loanID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, domain.ScheduleResponse{LoanID: loanID, Schedule: schedule})
}

func (h *LoanHandler) QuoteForeclosure(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.Quote(r.Context(), mux.Vars(r)["loanId"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, quote)
}

func (h *LoanHandler) Foreclose(w http.ResponseWriter, r *http.Request) {
	var req domain.ForecloseRequest
	if !h.decode(w, r, &req) {
		return
	}

	settled, err := h.service.Foreclose(r.Context(), mux.Vars(r)["loanId"], req.ActorID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, settled)
}

func (h *LoanHandler) PayOne(w http.ResponseWriter, r *http.Request) {
	var req domain.PayEmiRequest
	if !h.decode(w, r, &req) {
		return
	}

	receipt, err := h.service.PayOne(r.Context(), mux.Vars(r)["entryId"], req.AccountNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, receipt)
}

// PayMany answers 200 even when some installments failed; the body carries
// the per-entry outcome.
func (h *LoanHandler) PayMany(w http.ResponseWriter, r *http.Request) {
	var req domain.PayManyRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.service.PayMany(r.Context(), req.AccountNumber, req.EntryIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, result)
}

func (h *LoanHandler) CreditProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.service.ResolveCreditProfile(r.Context(), mux.Vars(r)["pan"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, profile)
}

func (h *LoanHandler) QuoteGold(w http.ResponseWriter, r *http.Request) {
	var req domain.GoldQuoteRequest
	if !h.decode(w, r, &req) {
		return
	}

	valuation, err := h.service.QuoteGold(r.Context(), req.WeightGrams)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	response.Success(w, valuation)
}
