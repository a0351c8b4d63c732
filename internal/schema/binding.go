package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var (
	decimalType = reflect.TypeOf(decimal.Decimal{})
	timeType    = reflect.TypeOf(time.Time{})
	rawJSONType = reflect.TypeOf(json.RawMessage{})
)

// Binding maps the db-tagged fields of struct type T onto an entity's columns.
type Binding[T any] struct {
	entity *Entity
	index  map[string][]int
}

// Bind builds a Binding and verifies field-for-field parity: every column
// must have exactly one tagged struct field of a compatible Go type and
// every tagged struct field must name a column.
func Bind[T any](e *Entity) (*Binding[T], error) {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: bind %s: %s is not a struct", e.Name, rt)
	}

	b := &Binding[T]{entity: e, index: make(map[string][]int)}
	var problems []string

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		col := sf.Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		f, ok := e.Field(col)
		if !ok {
			problems = append(problems, fmt.Sprintf("struct field %s maps to unknown column %q", sf.Name, col))
			continue
		}
		if _, dup := b.index[col]; dup {
			problems = append(problems, fmt.Sprintf("column %q bound twice", col))
			continue
		}
		if !compatible(f, sf.Type) {
			problems = append(problems, fmt.Sprintf("struct field %s (%s) cannot hold %s column %q", sf.Name, sf.Type, f.Type, col))
			continue
		}
		b.index[col] = sf.Index
	}

	for _, f := range e.Fields {
		if _, ok := b.index[f.Name]; !ok {
			problems = append(problems, fmt.Sprintf("column %q has no struct field", f.Name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("schema: bind %s to %s: %v", rt, e.Name, problems)
	}
	return b, nil
}

// MustBind is Bind that panics on a parity failure. Intended for package-level vars.
func MustBind[T any](e *Entity) *Binding[T] {
	b, err := Bind[T](e)
	if err != nil {
		panic(err)
	}
	return b
}

// Entity returns the bound entity.
func (b *Binding[T]) Entity() *Entity {
	return b.entity
}

func compatible(f Field, t reflect.Type) bool {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch f.Type {
	case String, Enum:
		return t.Kind() == reflect.String
	case Integer:
		switch t.Kind() {
		case reflect.Int, reflect.Int32, reflect.Int64:
			return true
		}
	case Decimal:
		return t == decimalType
	case Boolean:
		return t.Kind() == reflect.Bool
	case Timestamp:
		return t == timeType
	case JSON:
		return t == rawJSONType
	}
	return false
}

// Values returns the logical value of every column of v. Nil pointers and
// empty JSON become nil.
func (b *Binding[T]) Values(v *T) map[string]any {
	rv := reflect.ValueOf(v).Elem()
	out := make(map[string]any, len(b.index))
	for _, f := range b.entity.Fields {
		fv := rv.FieldByIndex(b.index[f.Name])
		if fv.Kind() == reflect.Pointer {
			if fv.IsNil() {
				out[f.Name] = nil
				continue
			}
			fv = fv.Elem()
		}
		out[f.Name] = logicalOf(f, fv)
	}
	return out
}

func logicalOf(f Field, fv reflect.Value) any {
	switch f.Type {
	case String, Enum:
		return fv.String()
	case Integer:
		return fv.Int()
	case Boolean:
		return fv.Bool()
	case Decimal:
		return fv.Interface().(decimal.Decimal)
	case Timestamp:
		t := fv.Interface().(time.Time)
		if t.IsZero() {
			return nil
		}
		return t.UTC().Truncate(time.Millisecond)
	case JSON:
		raw := fv.Interface().(json.RawMessage)
		if len(raw) == 0 {
			return nil
		}
		return raw
	}
	return nil
}

// Set assigns a logical value to the struct field bound to col.
func (b *Binding[T]) Set(v *T, col string, val any) error {
	idx, ok := b.index[col]
	if !ok {
		return fmt.Errorf("schema: %s has no column %q", b.entity.Name, col)
	}
	f, _ := b.entity.Field(col)
	fv := reflect.ValueOf(v).Elem().FieldByIndex(idx)

	if val == nil {
		fv.Set(reflect.Zero(fv.Type()))
		return nil
	}

	target := fv
	if fv.Kind() == reflect.Pointer {
		target = reflect.New(fv.Type().Elem()).Elem()
	}

	switch x := val.(type) {
	case string:
		if target.Kind() != reflect.String {
			return typeError(f, val)
		}
		target.SetString(x)
	case int64:
		if !target.CanInt() {
			return typeError(f, val)
		}
		target.SetInt(x)
	case bool:
		if target.Kind() != reflect.Bool {
			return typeError(f, val)
		}
		target.SetBool(x)
	case decimal.Decimal, time.Time, json.RawMessage:
		rv := reflect.ValueOf(x)
		if !rv.Type().AssignableTo(target.Type()) {
			return typeError(f, val)
		}
		target.Set(rv)
	default:
		return typeError(f, val)
	}

	if fv.Kind() == reflect.Pointer {
		fv.Set(target.Addr())
	}
	return nil
}

// Get returns the logical value of one column of v.
func (b *Binding[T]) Get(v *T, col string) (any, bool) {
	vals := b.Values(v)
	val, ok := vals[col]
	return val, ok
}
