// Package form implements the expense creation form: a transient buffer that
// turns into exactly one record on confirmation.
package form

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"expenses/internal/core"
	"expenses/internal/log"
)

// Policy: blank names and negative amounts are rejected, zero amounts are fine.
var (
	ErrEmptyName      = errors.New("name cannot be empty")
	ErrNegativeAmount = errors.New("amount cannot be negative")
	ErrClosed         = errors.New("form already confirmed")
)

// Adder is the slice of the expense store the form writes through.
type Adder interface {
	Add(ctx context.Context, rec core.Record) error
}

// Form buffers name, category and amount until Confirm.
type Form struct {
	Name     string
	Category core.Category
	Amount   decimal.Decimal

	adder   Adder
	onClose func()
	closed  bool
}

// New returns a form with default values: empty name, Personal, zero.
// onClose is called once after a successful Confirm; it may be nil.
func New(adder Adder, onClose func()) *Form {
	f := &Form{adder: adder, onClose: onClose}
	f.Reset()
	return f
}

// Reset restores the default field values and reopens the form.
func (f *Form) Reset() {
	f.Name = ""
	f.Category = core.Personal
	f.Amount = decimal.Zero
	f.closed = false
}

// SetCategory parses and stores a category name.
func (f *Form) SetCategory(s string) error {
	c, err := core.ParseCategory(s)
	if err != nil {
		return err
	}
	f.Category = c
	return nil
}

// SetAmountText parses user input such as "12,50" into the amount field.
func (f *Form) SetAmountText(s string) error {
	d, err := core.ParseAmount(s)
	if err != nil {
		return err
	}
	f.Amount = d
	return nil
}

// Validate applies the form policy to the buffered values.
func (f *Form) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return ErrEmptyName
	}
	if f.Amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !f.Category.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidCategory, string(f.Category))
	}
	return nil
}

// Confirm builds one record with a fresh id, hands it to the store and closes
// the form. On error the form stays open with its values intact.
func (f *Form) Confirm(ctx context.Context) (core.Record, error) {
	if f.closed {
		return core.Record{}, ErrClosed
	}
	if err := f.Validate(); err != nil {
		return core.Record{}, err
	}
	rec, err := core.NewRecord(strings.TrimSpace(f.Name), f.Category, f.Amount)
	if err != nil {
		return core.Record{}, err
	}
	if err := f.adder.Add(ctx, rec); err != nil {
		return core.Record{}, fmt.Errorf("save expense: %w", err)
	}

	log.FromContext(ctx).WithComponent(log.ComponentForm).InfoContext(ctx, "Expense created",
		log.NewFields().
			WithRecord(rec.ID.String(), rec.Name, rec.Category.String(), core.FormatAmount(rec.Amount)).
			WithOperation(log.OpConfirm).
			ToSlice()...)

	f.closed = true
	if f.onClose != nil {
		f.onClose()
	}
	return rec, nil
}

// Closed reports whether Confirm has succeeded since the last Reset.
func (f *Form) Closed() bool {
	return f.closed
}
