// Copyright (c) 2026 Dreamlog. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package docstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimeLayout is the storage format of [time.Time] values. It is fixed width,
// so lexical order equals chronological order in both backends.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in [TimeLayout].
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// # Field Accessors

// Has reports whether the document carries key with a non-null value.
func (d *Document) Has(key string) bool {
	value, ok := d.Fields[key]
	return ok && value != nil
}

// String returns the string field key or "".
func (d *Document) String(key string) string {
	value, _ := d.Fields[key].(string)
	return value
}

// Bool returns the boolean field key or false.
func (d *Document) Bool(key string) bool {
	value, _ := d.Fields[key].(bool)
	return value
}

// BoolOr returns the boolean field key, or fallback when it is absent.
func (d *Document) BoolOr(key string, fallback bool) bool {
	value, ok := d.Fields[key].(bool)
	if !ok {
		return fallback
	}
	return value
}

// Int returns the numeric field key truncated to int64, or 0.
func (d *Document) Int(key string) int64 {
	switch value := d.Fields[key].(type) {
	case float64:
		return int64(value)
	case int64:
		return value
	case int:
		return int64(value)
	}
	return 0
}

// Time parses the time field key. The zero time and false are returned when
// the field is absent or malformed.
func (d *Document) Time(key string) (time.Time, bool) {
	raw, ok := d.Fields[key].(string)
	if !ok {
		return time.Time{}, false
	}
	parsed, err := time.Parse(TimeLayout, raw)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return time.Time{}, false
		}
	}
	return parsed, true
}

// Strings returns the string elements of the array field key.
func (d *Document) Strings(key string) []string {
	raw, ok := d.Fields[key].([]any)
	if !ok {
		return nil
	}
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		if text, ok := item.(string); ok {
			values = append(values, text)
		}
	}
	return values
}

// BoolMap returns the boolean entries of the object field key.
func (d *Document) BoolMap(key string) map[string]bool {
	raw, ok := d.Fields[key].(map[string]any)
	if !ok {
		return nil
	}
	values := make(map[string]bool, len(raw))
	for name, item := range raw {
		if flag, ok := item.(bool); ok {
			values[name] = flag
		}
	}
	return values
}

// Decode unmarshals the document fields into target through JSON.
func (d *Document) Decode(target any) error {
	payload, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("docstore_decode_marshal_failed: %w", err)
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("docstore_decode_unmarshal_failed: %w", err)
	}
	return nil
}

// clone returns a deep copy so callers cannot mutate stored state.
func (d *Document) clone() *Document {
	copied := *d
	copied.Fields = cloneFields(d.Fields)
	return &copied
}

// # Normalization

// normalizeFields converts caller values into their canonical JSON form.
func normalizeFields(fields Fields) (Fields, error) {
	if fields == nil {
		return Fields{}, nil
	}

	prepared := make(map[string]any, len(fields))
	for key, value := range fields {
		if err := validateField(key); err != nil {
			return nil, err
		}
		prepared[key] = prepareValue(value)
	}

	payload, err := json.Marshal(prepared)
	if err != nil {
		return nil, fmt.Errorf("docstore_normalize_marshal_failed: %w", err)
	}

	normalized := Fields{}
	if err := json.Unmarshal(payload, &normalized); err != nil {
		return nil, fmt.Errorf("docstore_normalize_unmarshal_failed: %w", err)
	}

	return normalized, nil
}

// normalizeValue converts a single filter operand into its canonical JSON form.
func normalizeValue(value any) (any, error) {
	payload, err := json.Marshal(prepareValue(value))
	if err != nil {
		return nil, fmt.Errorf("docstore_normalize_value_failed: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(payload, &normalized); err != nil {
		return nil, fmt.Errorf("docstore_normalize_value_failed: %w", err)
	}
	return normalized, nil
}

// prepareValue rewrites time values, which JSON would otherwise encode with a
// variable number of fractional digits.
func prepareValue(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return FormatTime(typed)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return FormatTime(*typed)
	case Fields:
		return prepareMap(typed)
	case map[string]any:
		return prepareMap(typed)
	case []any:
		items := make([]any, len(typed))
		for i, item := range typed {
			items[i] = prepareValue(item)
		}
		return items
	}
	return value
}

func prepareMap(values map[string]any) map[string]any {
	prepared := make(map[string]any, len(values))
	for key, item := range values {
		prepared[key] = prepareValue(item)
	}
	return prepared
}

func cloneFields(fields Fields) Fields {
	if fields == nil {
		return nil
	}
	copied := make(Fields, len(fields))
	for key, value := range fields {
		copied[key] = cloneValue(value)
	}
	return copied
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, item := range typed {
			copied[key] = cloneValue(item)
		}
		return copied
	case []any:
		copied := make([]any, len(typed))
		for i, item := range typed {
			copied[i] = cloneValue(item)
		}
		return copied
	}
	return value
}
