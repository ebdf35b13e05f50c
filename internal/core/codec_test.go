package core

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords() []Record {
	return []Record{
		{ID: uuid.New(), Name: "Coffee", Category: Personal, Amount: decimal.RequireFromString("3.20")},
		{ID: uuid.New(), Name: "Train ticket", Category: Business, Amount: decimal.RequireFromString("48")},
		{ID: uuid.New(), Name: "", Category: Personal, Amount: decimal.Zero},
		{ID: uuid.New(), Name: "Coffee", Category: Personal, Amount: decimal.RequireFromString("3.20")},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, recs := range [][]Record{nil, {}, sampleRecords()} {
		data, err := EncodeRecords(recs)
		require.NoError(t, err)

		got, err := DecodeRecords(data)
		require.NoError(t, err)
		require.Len(t, got, len(recs))
		for i := range recs {
			assert.True(t, recs[i].Equal(got[i]), "record %d: want %+v got %+v", i, recs[i], got[i])
		}
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	r := Record{ID: uuid.MustParse("6f1c1e1a-2b3c-4d5e-8f90-a1b2c3d4e5f6"), Name: "Pen", Category: Business, Amount: decimal.RequireFromString("1.5")}
	data, err := EncodeRecords([]Record{r})
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"6f1c1e1a-2b3c-4d5e-8f90-a1b2c3d4e5f6","name":"Pen","category":"Business","amount":1.5}]`, string(data))
}

func TestDecodeAcceptsUppercaseIDs(t *testing.T) {
	data := `[{"id":"6F1C1E1A-2B3C-4D5E-8F90-A1B2C3D4E5F6","name":"Pen","category":"Business","amount":2}]`
	got, err := DecodeRecords([]byte(data))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "6f1c1e1a-2b3c-4d5e-8f90-a1b2c3d4e5f6", got[0].ID.String())
}

func TestDecodeFailures(t *testing.T) {
	id := uuid.New().String()
	bads := map[string]string{
		"empty":            ``,
		"garbage":          `not json`,
		"object":           `{"id":"x"}`,
		"bad id":           `[{"id":"nope","name":"a","category":"Business","amount":1}]`,
		"unknown category": `[{"id":"` + id + `","name":"a","category":"Travel","amount":1}]`,
		"negative amount":  `[{"id":"` + id + `","name":"a","category":"Business","amount":-1}]`,
		"missing amount":   `[{"id":"` + id + `","name":"a","category":"Business"}]`,
	}
	for name, in := range bads {
		_, err := DecodeRecords([]byte(in))
		assert.ErrorIs(t, err, ErrDecode, name)
		assert.True(t, strings.HasPrefix(err.Error(), "decode records"), name)
	}
}
