package core

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrDecode marks persisted bytes that could not be turned back into records.
var ErrDecode = errors.New("decode records")

// wireRecord fixes the persisted field order: id, name, category, amount.
type wireRecord struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Category string      `json:"category"`
	Amount   json.Number `json:"amount"`
}

// EncodeRecords serializes recs as a JSON array preserving order.
func EncodeRecords(recs []Record) ([]byte, error) {
	wire := make([]wireRecord, len(recs))
	for i, r := range recs {
		wire[i] = wireRecord{
			ID:       r.ID.String(),
			Name:     r.Name,
			Category: string(r.Category),
			Amount:   json.Number(r.Amount.String()),
		}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return data, nil
}

// DecodeRecords parses the output of EncodeRecords. Every record must pass
// Validate; a single bad record fails the whole sequence.
func DecodeRecords(data []byte) ([]Record, error) {
	var wire []wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	recs := make([]Record, 0, len(wire))
	for i, w := range wire {
		id, err := uuid.Parse(w.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecode, i, err)
		}
		amount, err := decimal.NewFromString(w.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("%w: record %d: amount %q", ErrDecode, i, w.Amount)
		}
		r := Record{
			ID:       id,
			Name:     w.Name,
			Category: Category(w.Category),
			Amount:   amount,
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("%w: record %d: %v", ErrDecode, i, err)
		}
		recs = append(recs, r)
	}
	return recs, nil
}
