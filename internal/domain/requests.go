package domain

import (
	"github.com/shopspring/decimal"
)

// DTOs for requests and responses

type SubmitLoanRequest struct {
	BorrowerAccount string          `json:"borrower_account" validate:"required"`
	Category        LoanCategory    `json:"category" validate:"required,oneof=personal home education gold"`
	Principal       decimal.Decimal `json:"principal" validate:"omitempty,gte=0"`
	TenureMonths    int             `json:"tenure_months" validate:"required,gt=0"`
	Documents       Documents       `json:"documents"`

	Purpose              string          `json:"purpose,omitempty"`
	PropertyAddress      string          `json:"property_address,omitempty"`
	PropertyValue        decimal.Decimal `json:"property_value,omitempty"`
	Institution          string          `json:"institution,omitempty"`
	CourseDurationMonths int             `json:"course_duration_months,omitempty"`
	DeclaredWeightGrams  decimal.Decimal `json:"declared_weight_grams,omitempty"`
}

// Details builds the category payload carried by the request.
func (r *SubmitLoanRequest) Details() (LoanDetails, error) {
	d, err := NewDetails(r.Category)
	if err != nil {
		return nil, err
	}
	switch v := d.(type) {
	case *PersonalDetails:
		v.Purpose = r.Purpose
	case *HomeDetails:
		v.PropertyAddress = r.PropertyAddress
		v.PropertyValue = r.PropertyValue
	case *EducationDetails:
		v.Institution = r.Institution
		v.CourseDurationMonths = r.CourseDurationMonths
	case *GoldDetails:
		v.DeclaredWeightGrams = r.DeclaredWeightGrams
	}
	return d, nil
}

type ApproveLoanRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	// VerifiedWeightGrams is required for gold loans only.
	VerifiedWeightGrams decimal.NullDecimal `json:"verified_weight_grams"`
}

type RejectLoanRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
	Reason     string `json:"reason" validate:"required"`
}

type PayEmiRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

type PayManyRequest struct {
	AccountNumber string   `json:"account_number" validate:"required"`
	EntryIDs      []string `json:"entry_ids" validate:"required,min=1,dive,required"`
}

type ForecloseRequest struct {
	ActorID string `json:"actor_id" validate:"required"`
}

type GoldQuoteRequest struct {
	WeightGrams decimal.Decimal `json:"weight_grams" validate:"required,gt=0"`
}

type LoanResponse struct {
	Loan                 *LoanApplication `json:"loan"`
	Schedule             Schedule         `json:"schedule,omitempty"`
	OutstandingPrincipal decimal.Decimal  `json:"outstanding_principal"`
}
