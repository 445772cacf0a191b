package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one record as it arrives from a feed, store or draft.
type Row map[string]any

func (r Row) lookup(keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (r Row) str(keys []string) string {
	v, ok := r.lookup(keys)
	if !ok {
		return ""
	}
	return strings.TrimSpace(asString(v))
}

func (r Row) dec(keys []string) (decimal.Decimal, bool) {
	v, ok := r.lookup(keys)
	if !ok {
		return decimal.Zero, false
	}
	return asDecimal(v)
}

func (r Row) integer(keys []string) int64 {
	v, ok := r.dec(keys)
	if !ok {
		return 0
	}
	return v.IntPart()
}

func (r Row) boolean(keys []string) bool {
	v, ok := r.lookup(keys)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	default:
		parsed, err := strconv.ParseBool(strings.TrimSpace(asString(v)))
		return err == nil && parsed
	}
}

func (r Row) time(keys []string) time.Time {
	v, ok := r.lookup(keys)
	if !ok {
		return time.Time{}
	}
	return asTime(v)
}

func (r Row) rows(keys []string) []Row {
	v, ok := r.lookup(keys)
	if !ok {
		return nil
	}
	return asRows(v)
}

func (r Row) object(keys []string) (Row, bool) {
	v, ok := r.lookup(keys)
	if !ok {
		return nil, false
	}
	switch o := v.(type) {
	case Row:
		return o, true
	case map[string]any:
		return Row(o), true
	default:
		return nil, false
	}
}

func (r Row) strings(keys []string) []string {
	v, ok := r.lookup(keys)
	if !ok {
		return nil
	}
	var raw []string
	switch list := v.(type) {
	case []string:
		raw = list
	case []any:
		for _, item := range list {
			raw = append(raw, asString(item))
		}
	case string:
		trimmed := strings.TrimSpace(list)
		if strings.HasPrefix(trimmed, "[") {
			_ = json.Unmarshal([]byte(trimmed), &raw)
		} else {
			raw = strings.Split(trimmed, ",")
		}
	case []byte:
		_ = json.Unmarshal(list, &raw)
	default:
		raw = []string{asString(v)}
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case json.Number:
		return s.String()
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%d", s)
	default:
		return fmt.Sprint(v)
	}
}

func asDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		s := strings.TrimSpace(asString(v))
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		return d, err == nil
	}
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case float64:
		return time.UnixMilli(int64(t)).UTC()
	case int64:
		return time.UnixMilli(t).UTC()
	}
	s := strings.TrimSpace(asString(v))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed.UTC()
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}

func asRows(v any) []Row {
	switch list := v.(type) {
	case []Row:
		return list
	case []map[string]any:
		out := make([]Row, 0, len(list))
		for _, item := range list {
			out = append(out, Row(item))
		}
		return out
	case []any:
		out := make([]Row, 0, len(list))
		for _, item := range list {
			switch m := item.(type) {
			case map[string]any:
				out = append(out, Row(m))
			case Row:
				out = append(out, m)
			}
		}
		return out
	case string, []byte:
		var decoded []map[string]any
		if err := json.Unmarshal([]byte(asString(v)), &decoded); err != nil {
			return nil
		}
		return asRows(decoded)
	default:
		return nil
	}
}
