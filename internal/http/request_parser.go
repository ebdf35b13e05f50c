// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for reading request bodies that arrive
// either as JSON objects or as form-encoded data.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 64 << 10

var errMissingField = errors.New("missing field")

// RequestBodyParser handles JSON and form-encoded request bodies.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body once and stores it for parsing. Bodies
// over maxBodyBytes fail Parse with a *http.MaxBytesError.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse parses the body as JSON when it looks like an object, otherwise as
// form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Has reports whether key was sent at all.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	_, ok := p.formData[key]
	return ok
}

// Get returns a sanitized string value from the parsed data.
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// Ints reads an integer list. JSON accepts a number or an array of numbers;
// forms accept repeated keys and comma separated values.
func (p *RequestBodyParser) Ints(key string) ([]int, error) {
	if p.jsonData != nil {
		val, ok := p.jsonData[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s", errMissingField, key)
		}
		items, isList := val.([]any)
		if !isList {
			items = []any{val}
		}
		out := make([]int, 0, len(items))
		for _, it := range items {
			f, ok := it.(float64)
			if !ok || f != math.Trunc(f) {
				return nil, fmt.Errorf("%s: %v is not an integer", key, it)
			}
			out = append(out, int(f))
		}
		return out, nil
	}

	raw, ok := p.formData[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errMissingField, key)
	}
	var out []int
	for _, v := range raw {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("%s: %q is not an integer", key, part)
			}
			out = append(out, n)
		}
	}
	return out, nil
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}
