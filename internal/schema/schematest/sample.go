// Package schematest generates random valid values for schema fields.
package schematest

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nerrad567/posfleet-core/internal/schema"
)

// Value returns a random valid logical value for f. Foreign keys are not
// resolved; callers substitute real parent ids.
func Value(r *rand.Rand, f schema.Field) any {
	switch f.Type {
	case schema.String:
		if f.IsPrimaryKey() {
			return uuid.NewString()
		}
		n := 1 + r.IntN(24)
		if f.MaxLen > 0 && n > f.MaxLen {
			n = f.MaxLen
		}
		return randomText(r, n)

	case schema.Enum:
		return f.Values[r.IntN(len(f.Values))]

	case schema.Integer:
		lo, hi := int64(0), int64(1_000_000)
		if f.Range != nil {
			lo, hi = f.Range.Min.IntPart(), f.Range.Max.IntPart()
		}
		return lo + r.Int64N(hi-lo+1)

	case schema.Decimal:
		return randomDecimal(r, f)

	case schema.Boolean:
		return r.IntN(2) == 1

	case schema.Timestamp:
		// 2000-01-01 .. 2040-01-01
		ms := int64(946684800000) + r.Int64N(int64(40*365*24*time.Hour/time.Millisecond))
		return time.UnixMilli(ms).UTC()

	case schema.JSON:
		ring := make([][2]float64, 3+r.IntN(4))
		for i := range ring {
			ring[i] = [2]float64{float64(r.IntN(180_000_000)) / 1e6, float64(r.IntN(90_000_000)) / 1e6}
		}
		raw, _ := json.Marshal(map[string]any{"type": "Polygon", "coordinates": [][][2]float64{ring}})
		return json.RawMessage(raw)
	}
	panic(fmt.Sprintf("schematest: unhandled type %q", f.Type))
}

// Row returns a random valid value for every field of e.
func Row(r *rand.Rand, e *schema.Entity) map[string]any {
	row := make(map[string]any, len(e.Fields))
	for _, f := range e.Fields {
		row[f.Name] = Value(r, f)
	}
	return row
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_.éß"

func randomText(r *rand.Rand, n int) string {
	runes := []rune(alphabet)
	out := make([]rune, n)
	for i := range out {
		out[i] = runes[r.IntN(len(runes))]
	}
	return string(out)
}

func randomDecimal(r *rand.Rand, f schema.Field) decimal.Decimal {
	scale := decimal.New(1, f.Scale)
	if f.Range != nil {
		span := f.Range.Max.Sub(f.Range.Min).Mul(scale).IntPart()
		units := r.Int64N(span + 1)
		return f.Range.Min.Add(decimal.New(units, -f.Scale))
	}
	intDigits := f.Precision - f.Scale
	if intDigits > 12 {
		intDigits = 12
	}
	limit := decimal.New(1, intDigits).Mul(scale).IntPart()
	units := r.Int64N(limit)
	if r.IntN(2) == 0 {
		units = -units
	}
	return decimal.New(units, -f.Scale)
}
