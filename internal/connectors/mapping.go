package connectors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/fleetsync/internal/core/domain"
)

// FlexString decodes a JSON string or number into a string.
// Providers are inconsistent about quoting identifiers.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}

// String returns the decoded value.
func (f FlexString) String() string {
	return string(f)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats providers send. Blank is the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Cents converts a decimal currency amount to integer cents.
func Cents(amount json.Number) (int64, error) {
	if amount == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(amount.String(), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", amount)
	}
	return int64(math.Round(f * 100)), nil
}

// MappingError wraps domain.ErrMapping with the entity type and detail.
func MappingError(entityType domain.EntityType, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", domain.ErrMapping, entityType, fmt.Sprintf(format, args...))
}

// DecodeItem unmarshals a raw item, wrapping failures as mapping errors.
func DecodeItem(entityType domain.EntityType, item json.RawMessage, out any) error {
	if err := json.Unmarshal(item, out); err != nil {
		return MappingError(entityType, "decode item: %v", err)
	}
	return nil
}
