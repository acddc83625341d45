package util

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"mime"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a body cannot be decoded as a flat key-value
// payload.
var ErrMalformed = errors.New("malformed body")

// ExtractFields decodes a small flat payload into string fields. JSON objects
// and url-encoded forms are accepted; JSON numbers and booleans are kept in
// their textual form. Nested values are ignored.
func ExtractFields(contentType string, body []byte) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		return extractForm(body)
	}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] != '{' && mediaType != "application/json" {
		return extractForm(trimmed)
	}
	return extractJSON(trimmed)
}

func extractJSON(body []byte) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	fields := make(map[string]string, len(raw))
	for k, v := range raw {
		var val any
		if err := json.Unmarshal(v, &val); err != nil {
			continue
		}
		switch x := val.(type) {
		case string:
			fields[k] = x
		case float64:
			fields[k] = strings.TrimSpace(string(v))
		case bool:
			fields[k] = strconv.FormatBool(x)
		}
	}
	return fields, nil
}

func extractForm(body []byte) (map[string]string, error) {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}
	fields := make(map[string]string, len(values))
	for k := range values {
		fields[k] = values.Get(k)
	}
	return fields, nil
}

// ParseAmount parses a non-negative finite decimal amount.
func ParseAmount(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, false
	}
	return v, true
}
