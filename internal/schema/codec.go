package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrType is returned when a value cannot be represented as a field's logical type.
var ErrType = errors.New("schema: value has wrong type")

// Logical values are represented in Go as:
//
//	String, Enum  string
//	Integer       int64
//	Decimal       decimal.Decimal
//	Boolean       bool
//	Timestamp     time.Time (UTC, millisecond precision)
//	JSON          json.RawMessage
//
// nil stands for SQL NULL in both directions.

// Normalize converts v into the logical representation of f. It accepts the
// logical form itself and the forms produced by encoding/json with UseNumber.
func Normalize(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Type {
	case String, Enum:
		s, ok := v.(string)
		if !ok {
			return nil, typeError(f, v)
		}
		// An empty enum or reference is absent, not a value.
		if s == "" && (f.Type == Enum || f.References != "") {
			return nil, nil
		}
		return s, nil

	case Integer:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case json.Number:
			i, err := n.Int64()
			if err != nil {
				return nil, typeError(f, v)
			}
			return i, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, typeError(f, v)
			}
			return int64(n), nil
		}
		return nil, typeError(f, v)

	case Decimal:
		switch n := v.(type) {
		case decimal.Decimal:
			return n, nil
		case string:
			d, err := decimal.NewFromString(strings.TrimSpace(n))
			if err != nil {
				return nil, typeError(f, v)
			}
			return d, nil
		case json.Number:
			d, err := decimal.NewFromString(n.String())
			if err != nil {
				return nil, typeError(f, v)
			}
			return d, nil
		case float64:
			return decimal.NewFromFloat(n), nil
		case int64:
			return decimal.NewFromInt(n), nil
		case int:
			return decimal.NewFromInt(int64(n)), nil
		}
		return nil, typeError(f, v)

	case Boolean:
		b, ok := v.(bool)
		if !ok {
			return nil, typeError(f, v)
		}
		return b, nil

	case Timestamp:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Truncate(time.Millisecond), nil
		case string:
			parsed, err := time.Parse(time.RFC3339Nano, t)
			if err != nil {
				return nil, typeError(f, v)
			}
			return parsed.UTC().Truncate(time.Millisecond), nil
		}
		return nil, typeError(f, v)

	case JSON:
		switch j := v.(type) {
		case json.RawMessage:
			if !json.Valid(j) {
				return nil, typeError(f, v)
			}
			return j, nil
		case []byte:
			if !json.Valid(j) {
				return nil, typeError(f, v)
			}
			return json.RawMessage(j), nil
		default:
			raw, err := json.Marshal(j)
			if err != nil {
				return nil, typeError(f, v)
			}
			return json.RawMessage(raw), nil
		}
	}
	return nil, fmt.Errorf("schema: field %s has unknown type %q", f.Name, f.Type)
}

func typeError(f Field, v any) error {
	return fmt.Errorf("%w: %s expects %s, got %T", ErrType, f.Name, f.Type, v)
}

// Encode converts a logical value into the driver value stored by d.
func (d Dialect) Encode(f Field, v any) (any, error) {
	v, err := Normalize(f, v)
	if err != nil || v == nil {
		return nil, err
	}
	switch f.Type {
	case Decimal:
		return v.(decimal.Decimal).StringFixed(f.Scale), nil
	case Boolean:
		if d.backend == BackendSQLite {
			if v.(bool) {
				return int64(1), nil
			}
			return int64(0), nil
		}
		return v, nil
	case Timestamp:
		t := v.(time.Time)
		if d.backend == BackendSQLite {
			return t.UnixMilli(), nil
		}
		return t, nil
	case JSON:
		return string(v.(json.RawMessage)), nil
	}
	return v, nil
}

// Decode converts a driver value read from d into the logical value of f.
//
// Drivers differ in what they hand back: lib/pq returns NUMERIC and JSONB
// as []byte, go-sqlite3 returns INTEGER columns as int64 and TEXT as string.
func (d Dialect) Decode(f Field, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch f.Type {
	case String:
		return asString(f, raw)

	case Enum:
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		if !f.HasValue(s) {
			return Unclassified, nil
		}
		return s, nil

	case Integer:
		switch n := raw.(type) {
		case int64:
			return n, nil
		case float64:
			return int64(n), nil
		}
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, typeError(f, raw)
		}
		return i, nil

	case Decimal:
		switch n := raw.(type) {
		case int64:
			return decimal.NewFromInt(n), nil
		case float64:
			return decimal.NewFromFloat(n), nil
		}
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		dec, err := decimal.NewFromString(s)
		if err != nil {
			return nil, typeError(f, raw)
		}
		return dec, nil

	case Boolean:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case int64:
			return b != 0, nil
		}
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, typeError(f, raw)
		}
		return b, nil

	case Timestamp:
		switch t := raw.(type) {
		case time.Time:
			return t.UTC().Truncate(time.Millisecond), nil
		case int64:
			return time.UnixMilli(t).UTC(), nil
		}
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, typeError(f, raw)
		}
		return t.UTC().Truncate(time.Millisecond), nil

	case JSON:
		s, err := asString(f, raw)
		if err != nil {
			return nil, err
		}
		return json.RawMessage(s), nil
	}
	return nil, fmt.Errorf("schema: field %s has unknown type %q", f.Name, f.Type)
}

func asString(f Field, raw any) (string, error) {
	switch s := raw.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", typeError(f, raw)
}
