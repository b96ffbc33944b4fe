package frame

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Kind is the logical type of a cell value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindFloat
	KindInt
	KindBool
	KindDate
	KindTime
)

var kindNames = map[Kind]string{
	KindNull:   "null",
	KindString: "string",
	KindFloat:  "float",
	KindInt:    "int",
	KindBool:   "bool",
	KindDate:   "date",
	KindTime:   "timestamp",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String. Unknown names map to KindString.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindString
}

// Date is a calendar day without a time component.
type Date time.Time

const dateLayout = "2006-01-02"

func NewDate(year int, month time.Month, day int) Date {
	return Date(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date(t), nil
}

func (d Date) Time() time.Time { return time.Time(d) }

func (d Date) String() string { return time.Time(d).Format(dateLayout) }

// MonthStart returns the first day of the month containing d.
func (d Date) MonthStart() Date {
	t := time.Time(d)
	return NewDate(t.Year(), t.Month(), 1)
}

func (d Date) Before(o Date) bool { return time.Time(d).Before(time.Time(o)) }

func (d Date) After(o Date) bool { return time.Time(d).After(time.Time(o)) }

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// KindOf reports the kind of a cell value.
func KindOf(v any) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case string:
		return KindString
	case float64:
		return KindFloat
	case int64:
		return KindInt
	case bool:
		return KindBool
	case Date:
		return KindDate
	case time.Time:
		return KindTime
	default:
		return KindString
	}
}

// Normalize converts common Go scalar types into the canonical cell types.
func Normalize(v any) any {
	switch x := v.(type) {
	case nil, string, float64, int64, bool, Date, time.Time:
		return x
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case *string:
		if x == nil {
			return nil
		}
		return *x
	case *float64:
		if x == nil {
			return nil
		}
		return *x
	case *int64:
		if x == nil {
			return nil
		}
		return *x
	default:
		return fmt.Sprint(x)
	}
}

// Format renders a value the same way for CSV output and hashing.
func Format(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case Date:
		return x.String()
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}

// ParseAs parses a formatted value back into the given kind. Empty strings are null.
func ParseAs(kind Kind, s string) (any, error) {
	if s == "" && kind != KindString {
		return nil, nil
	}
	switch kind {
	case KindString:
		return s, nil
	case KindFloat:
		return strconv.ParseFloat(s, 64)
	case KindInt:
		return strconv.ParseInt(s, 10, 64)
	case KindBool:
		return strconv.ParseBool(s)
	case KindDate:
		return ParseDate(s)
	case KindTime:
		return time.Parse(time.RFC3339Nano, s)
	default:
		return nil, nil
	}
}

// AsFloat returns the numeric value of v, or false if v is not numeric.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) {
			return 0, false
		}
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

// Compare orders two non-null values. Values of different kinds order by kind,
// except int and float which compare numerically.
func Compare(a, b any) int {
	fa, aNum := AsFloat(a)
	fb, bNum := AsFloat(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	ka, kb := KindOf(a), KindOf(b)
	if ka != kb {
		if ka < kb {
			return -1
		}
		return 1
	}
	switch x := a.(type) {
	case string:
		y := b.(string)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y := b.(bool)
		if x == y {
			return 0
		}
		if !x {
			return -1
		}
		return 1
	case Date:
		return time.Time(x).Compare(time.Time(b.(Date)))
	case time.Time:
		return x.Compare(b.(time.Time))
	}
	return 0
}
