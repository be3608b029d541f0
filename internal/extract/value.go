package extract

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/joseph-ayodele/faxintake/internal/entity"
)

// Kind tags the variant held by a Value.
type Kind int

const (
	KindUnknown Kind = iota
	KindString
	KindDate
	KindInteger
	KindStringList
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindInteger:
		return "integer"
	case KindStringList:
		return "list"
	default:
		return "unknown"
	}
}

// Value is a backend field value: exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	Str  string
	Date time.Time
	Int  int64
	List []string
}

func StringValue(s string) Value       { return Value{Kind: KindString, Str: s} }
func DateValue(t time.Time) Value      { return Value{Kind: KindDate, Date: t} }
func IntegerValue(n int64) Value       { return Value{Kind: KindInteger, Int: n} }
func StringListValue(l []string) Value { return Value{Kind: KindStringList, List: l} }

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindDate:
		return v.Date.Format(entity.DateLayout)
	case KindInteger:
		return strconv.FormatInt(v.Int, 10)
	case KindStringList:
		return strings.Join(v.List, ",")
	default:
		return fmt.Sprintf("<%s>", v.Kind)
	}
}

// AsString accepts only string-typed values.
func (v Value) AsString() (string, bool) {
	if v.Kind != KindString {
		return "", false
	}
	return v.Str, true
}

// AsDate prefers a native date, then falls back to parsing a string value.
func (v Value) AsDate() (entity.Date, bool) {
	switch v.Kind {
	case KindDate:
		return entity.NewDate(v.Date), true
	case KindString:
		s := strings.TrimSpace(v.Str)
		if s == "" {
			return entity.Date{}, false
		}
		t, err := dateparse.ParseAny(s)
		if err != nil {
			return entity.Date{}, false
		}
		return entity.NewDate(t), true
	}
	return entity.Date{}, false
}

// AsInt prefers a native integer, then falls back to parsing a string value.
func (v Value) AsInt() (int, bool) {
	switch v.Kind {
	case KindInteger:
		return int(v.Int), true
	case KindString:
		n, err := strconv.Atoi(strings.TrimSpace(v.Str))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// AsList prefers a native list, then falls back to splitting a string value on commas.
// Entries are trimmed and empty entries dropped; an empty result is absent.
func (v Value) AsList() ([]string, bool) {
	switch v.Kind {
	case KindStringList:
		out := make([]string, 0, len(v.List))
		for _, s := range v.List {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out, len(out) > 0
	case KindString:
		return SplitCodes(v.Str)
	}
	return nil, false
}

// SplitCodes splits a comma separated code string, keeping order.
func SplitCodes(s string) ([]string, bool) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, len(out) > 0
}
