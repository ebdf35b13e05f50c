package http

import (
	"errors"
	"net/http"

	"expenses/internal/core"
	"expenses/internal/form"
	"expenses/internal/log"
	"expenses/internal/store"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(toList(s.store.Items())).Write(w)
}

// handleCreateExpense fills a fresh form from the body and confirms it.
// Missing category and amount keep the form defaults.
func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BodyError(err).Write(w)
		return
	}

	f := form.New(s.store, nil)
	f.Name = p.Get("name")
	if p.Has("category") {
		if err := f.SetCategory(p.Get("category")); err != nil {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
	}
	if p.Has("amount") {
		if err := f.SetAmountText(p.Get("amount")); err != nil {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
	}

	rec, err := f.Confirm(r.Context())
	switch {
	case err == nil:
	case errors.Is(err, form.ErrEmptyName),
		errors.Is(err, form.ErrNegativeAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrInvalidAmount):
		UnprocessableEntityError(err.Error()).Write(w)
		return
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Creating expense failed",
			log.FieldOperation, log.OpAdd,
			log.FieldError, err)
		InternalServerError("could not save expense").Write(w)
		return
	}

	NewResponse().
		Status(http.StatusCreated).
		JSON(toView(s.offsetOf(rec), rec)).
		Write(w)
}

// handleDeleteExpenses removes the records at the posted offsets.
func (s *Server) handleDeleteExpenses(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BodyError(err).Write(w)
		return
	}
	offsets, err := p.Ints("offsets")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}

	if err := s.store.RemoveAt(r.Context(), offsets...); err != nil {
		if errors.Is(err, store.ErrOutOfRange) {
			UnprocessableEntityError(err.Error()).Write(w)
			return
		}
		InternalServerError("could not remove expenses").Write(w)
		return
	}

	NewResponse().JSON(toList(s.store.Items())).Write(w)
}

// offsetOf finds rec in the current sequence, or -1 if it is already gone.
func (s *Server) offsetOf(rec core.Record) int {
	items := s.store.Items()
	for i := len(items) - 1; i >= 0; i-- {
		if items[i].ID == rec.ID {
			return i
		}
	}
	return -1
}
