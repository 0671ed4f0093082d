package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// LoanCategory identifies the product a loan was issued under.
type LoanCategory string

const (
	CategoryPersonal  LoanCategory = "personal"
	CategoryHome      LoanCategory = "home"
	CategoryEducation LoanCategory = "education"
	CategoryGold      LoanCategory = "gold"
)

// Valid reports whether c is a known category.
func (c LoanCategory) Valid() bool {
	switch c {
	case CategoryPersonal, CategoryHome, CategoryEducation, CategoryGold:
		return true
	}
	return false
}

// CollateralBacked reports whether the category is priced from collateral
// instead of a credit score.
func (c LoanCategory) CollateralBacked() bool {
	return c == CategoryGold
}

// LoanDetails is the closed set of category-specific payloads.
type LoanDetails interface {
	Category() LoanCategory
	clone() LoanDetails
}

type PersonalDetails struct {
	Purpose string `json:"purpose,omitempty"`
}

type HomeDetails struct {
	PropertyAddress string          `json:"property_address"`
	PropertyValue   decimal.Decimal `json:"property_value"`
}

type EducationDetails struct {
	Institution          string `json:"institution"`
	CourseDurationMonths int    `json:"course_duration_months,omitempty"`
}

// GoldDetails carries the pledged collateral. Valuation is set once, at
// approval, and never re-priced.
type GoldDetails struct {
	DeclaredWeightGrams decimal.Decimal      `json:"declared_weight_grams"`
	VerifiedWeightGrams decimal.NullDecimal  `json:"verified_weight_grams"`
	VerifiedBy          string               `json:"verified_by,omitempty"`
	Valuation           *CollateralValuation `json:"valuation,omitempty"`
}

func (*PersonalDetails) Category() LoanCategory  { return CategoryPersonal }
func (*HomeDetails) Category() LoanCategory      { return CategoryHome }
func (*EducationDetails) Category() LoanCategory { return CategoryEducation }
func (*GoldDetails) Category() LoanCategory      { return CategoryGold }

func (d *PersonalDetails) clone() LoanDetails  { c := *d; return &c }
func (d *HomeDetails) clone() LoanDetails      { c := *d; return &c }
func (d *EducationDetails) clone() LoanDetails { c := *d; return &c }
func (d *GoldDetails) clone() LoanDetails {
	c := *d
	if d.Valuation != nil {
		v := *d.Valuation
		c.Valuation = &v
	}
	return &c
}

// NewDetails returns an empty payload for the category.
func NewDetails(category LoanCategory) (LoanDetails, error) {
	switch category {
	case CategoryPersonal:
		return &PersonalDetails{}, nil
	case CategoryHome:
		return &HomeDetails{}, nil
	case CategoryEducation:
		return &EducationDetails{}, nil
	case CategoryGold:
		return &GoldDetails{}, nil
	default:
		return nil, fmt.Errorf("unknown loan category %q", category)
	}
}

// EncodeDetails serializes details for storage.
func EncodeDetails(d LoanDetails) ([]byte, error) {
	if d == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(d)
}

// DecodeDetails restores the payload stored for a category.
func DecodeDetails(category LoanCategory, raw []byte) (LoanDetails, error) {
	d, err := NewDetails(category)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(raw, d); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", category, err)
	}
	return d, nil
}

// UnmarshalJSON decodes the details payload according to the category field.
func (l *LoanApplication) UnmarshalJSON(data []byte) error {
	var wire struct {
		LoanCore
		Details json.RawMessage `json:"details"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	details, err := DecodeDetails(wire.Category, wire.Details)
	if err != nil {
		return err
	}
	l.LoanCore = wire.LoanCore
	l.Details = details
	return nil
}
