package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Business Category = "Business"
	Personal Category = "Personal"
)

type (
	// Category is the closed set of expense kinds a record can carry.
	Category string

	// Record is one immutable expense entry.
	Record struct {
		ID       uuid.UUID
		Name     string
		Category Category
		Amount   decimal.Decimal
	}
)

var (
	ErrInvalidID       = errors.New("invalid record id")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// Categories returns the enumeration in display order.
func Categories() []Category {
	return []Category{Business, Personal}
}

// ParseCategory matches s against the enumeration, ignoring case and
// surrounding whitespace.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	for _, c := range Categories() {
		if strings.EqualFold(s, string(c)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
}

func (c Category) String() string {
	return string(c)
}

// IsValid reports whether c belongs to the enumeration.
func (c Category) IsValid() bool {
	switch c {
	case Business, Personal:
		return true
	default:
		return false
	}
}

// NewRecord builds a record with a freshly generated identifier.
func NewRecord(name string, category Category, amount decimal.Decimal) (Record, error) {
	r := Record{
		ID:       uuid.New(),
		Name:     name,
		Category: category,
		Amount:   amount,
	}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

// Validate checks the record invariants. Names are not constrained here so that
// anything persisted earlier still loads.
func (r Record) Validate() error {
	if r.ID == uuid.Nil {
		return ErrInvalidID
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, string(r.Category))
	}
	if r.Amount.IsNegative() {
		return ErrInvalidAmount
	}
	return nil
}

// Equal compares two records field by field.
func (r Record) Equal(o Record) bool {
	return r.ID == o.ID &&
		r.Name == o.Name &&
		r.Category == o.Category &&
		r.Amount.Equal(o.Amount)
}

// Total sums the amounts of recs.
func Total(recs []Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range recs {
		total = total.Add(r.Amount)
	}
	return total
}
