package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parserFor(t *testing.T, body string) *RequestBodyParser {
	t.Helper()
	p := NewRequestBodyParser(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.NoError(t, p.Parse())
	return p
}

func TestRequestBodyParserGet(t *testing.T) {
	p := parserFor(t, `{"name":"  Taxi\u0007 ","amount":12.5,"flag":true}`)
	assert.True(t, p.IsJSON())
	assert.Equal(t, "Taxi", p.Get("name"))
	assert.Equal(t, "12.5", p.Get("amount"))
	assert.Equal(t, "true", p.Get("flag"))
	assert.True(t, p.Has("amount"))
	assert.False(t, p.Has("category"))
	assert.Equal(t, "", p.Get("category"))

	p = parserFor(t, "name=Lunch&amount=8%2C50")
	assert.False(t, p.IsJSON())
	assert.Equal(t, "Lunch", p.Get("name"))
	assert.Equal(t, "8,50", p.Get("amount"))

	p = parserFor(t, "")
	assert.False(t, p.Has("name"))
}

func TestRequestBodyParserInts(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    []int
		wantErr bool
	}{
		{name: "json array", body: `{"offsets":[2,0]}`, want: []int{2, 0}},
		{name: "json scalar", body: `{"offsets":3}`, want: []int{3}},
		{name: "json fraction", body: `{"offsets":[0.5]}`, wantErr: true},
		{name: "json string", body: `{"offsets":["1"]}`, wantErr: true},
		{name: "json missing", body: `{}`, wantErr: true},
		{name: "form repeated", body: "offsets=1&offsets=4", want: []int{1, 4}},
		{name: "form comma", body: "offsets=1,%202,", want: []int{1, 2}},
		{name: "form negative", body: "offsets=-1", want: []int{-1}},
		{name: "form garbage", body: "offsets=x", wantErr: true},
		{name: "form missing", body: "other=1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parserFor(t, tt.body).Ints("offsets")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequestBodyParserInvalidJSON(t *testing.T) {
	p := NewRequestBodyParser(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":`)))
	assert.Error(t, p.Parse())
	assert.Error(t, p.Parse(), "result is remembered")
}

func TestRequestBodyParserRejectsOversizedBody(t *testing.T) {
	body := "name=" + strings.Repeat("x", maxBodyBytes)
	p := NewRequestBodyParser(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	err := p.Parse()
	var tooLarge *http.MaxBytesError
	require.ErrorAs(t, err, &tooLarge)

	w := httptest.NewRecorder()
	BodyError(err).Write(w)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	UnprocessableEntityError("name cannot be empty").Header("X-Test", "1").Write(rr)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("X-Test"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"error":"name cannot be empty"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(rr)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())
}
