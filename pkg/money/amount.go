package money

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse coerces a price value as received from the backend into a decimal.
// The API is not consistent about numeric types: prices arrive as JSON
// numbers, decimal strings, or display strings with comma grouping
// ("2,500"). nil, empty, and unparsable values coerce to zero, and so do
// negative values, since a price is never negative. Parse never fails.
func Parse(v any) decimal.Decimal {
	switch p := v.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return clamp(p)
	case string:
		return parseString(p)
	case json.Number:
		return parseString(p.String())
	case float64:
		return clamp(decimal.NewFromFloat(p))
	case float32:
		return clamp(decimal.NewFromFloat32(p))
	case int:
		return clamp(decimal.NewFromInt(int64(p)))
	case int64:
		return clamp(decimal.NewFromInt(p))
	default:
		return decimal.Zero
	}
}

func parseString(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.TrimPrefix(s, "₦")
	if s == "" || s == "null" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return clamp(d)
}

func clamp(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// Format renders an amount for display with comma grouping and two decimal
// places, e.g. 2500 -> "2,500.00".
func Format(d decimal.Decimal) string {
	s := d.StringFixed(2)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(fracPart)
	return b.String()
}

// Amount is a price field that tolerates the backend's mixed encodings. It
// unmarshals from a JSON number or any string Parse accepts, and marshals
// back as a plain decimal string.
type Amount struct {
	decimal.Decimal
}

func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: clamp(d)}
}

func AmountFromString(s string) Amount {
	return Amount{Decimal: parseString(s)}
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	a.Decimal = parseString(s)
	return nil
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal.String())
}

func (a Amount) Format() string {
	return Format(a.Decimal)
}
