package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidShape is returned when an extraction response does not hold a receipt
var ErrInvalidShape = errors.New("response does not match the receipt shape")

// ErrInvalidDate is returned when a date cannot be normalized to YYYY-MM-DD
var ErrInvalidDate = errors.New("invalid date")

const isoDate = "2006-01-02"

// dateLayouts are tried in order when normalizing a date
var dateLayouts = []string{
	isoDate,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// envelope is the extraction service's response body
type envelope struct {
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload"`
	Detail  string          `json:"detail"`
}

// ParseEnvelope decodes a `{"payload": {...}}` response body into a Receipt.
// Nothing is returned unless the whole payload decodes.
func ParseEnvelope(body []byte) (*Receipt, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling envelope: %v", ErrInvalidShape, err)
	}

	if env.Status != "" && !strings.EqualFold(env.Status, "success") {
		return nil, fmt.Errorf("%w: status %q", ErrInvalidShape, env.Status)
	}

	payload := bytes.TrimSpace(env.Payload)
	if len(payload) == 0 || payload[0] != '{' {
		return nil, fmt.Errorf("%w: payload is not an object", ErrInvalidShape)
	}

	var r Receipt
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling payload: %v", ErrInvalidShape, err)
	}

	if r.Items == nil {
		r.Items = []Item{}
	}
	r.Merchant.Name = trimmed(r.Merchant.Name)
	for i := range r.Items {
		r.Items[i].Name = strings.TrimSpace(r.Items[i].Name)
	}

	return &r, nil
}

// ErrorDetail extracts the `detail` message from an error response body, if any
func ErrorDetail(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ""
	}
	return env.Detail
}

// NormalizeDate converts a date in any accepted layout to YYYY-MM-DD
func NormalizeDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return d.Format(isoDate), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, value)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
