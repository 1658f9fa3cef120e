// Package filtering implements the list-query DSL shared by every
// find_all style operation: field-level predicates combined with AND or
// OR, ordered multi-key sorting, and offset pagination. Evaluation runs
// in process over flattened field maps supplied by the repositories.
package filtering

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/clinicalmdr-backend/internal/platform/apierr"
)

// Op is a field predicate operator. The wire names follow the query
// grammar consumed by list endpoints.
type Op string

const (
	OpEq       Op = "eq" // equals any of the values
	OpNe       Op = "ne" // equals none of the values
	OpContains Op = "co" // case-insensitive substring
	OpGe       Op = "ge"
	OpGt       Op = "gt"
	OpLe       Op = "le"
	OpLt       Op = "lt"
	OpBetween  Op = "bw" // inclusive range, exactly two values
)

// WildcardField applies a condition to every string field of a row.
const WildcardField = "*"

// Condition is one field predicate: a value list plus an operator.
// The zero operator means eq.
type Condition struct {
	Values []any `json:"v"`
	Op     Op    `json:"op,omitempty"`
}

// Filters maps field name to condition.
type Filters map[string]Condition

type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
)

func ParseLogicalOp(s string) (LogicalOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and":
		return LogicalAnd, nil
	case "or":
		return LogicalOr, nil
	}
	return "", apierr.Validation("unknown filter operator %q, expected AND or OR", s)
}

// SortKey is one sort dimension. Keys apply in order, earlier keys
// dominating.
type SortKey struct {
	Field     string
	Ascending bool
}

// Sort is an ordered multi-key sort specification.
type Sort []SortKey

// UnmarshalJSON accepts the wire shape {"field": ascending, ...} and
// preserves key order, which a plain map cannot do.
func (s *Sort) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sort_by must be a JSON object")
	}
	out := Sort{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		field, _ := keyTok.(string)
		var asc bool
		if err := dec.Decode(&asc); err != nil {
			return fmt.Errorf("sort_by.%s must be a boolean: %w", field, err)
		}
		out = append(out, SortKey{Field: field, Ascending: asc})
	}
	*s = out
	return nil
}

func (s Sort) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		if k.Ascending {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Page is the offset pagination request. Size 0 means all rows.
type Page struct {
	Number    int
	Size      int
	WithTotal bool
}

// Validate enforces the pagination bounds before any store work.
func (p Page) Validate(maxSize int) error {
	if p.Number < 1 {
		return apierr.Validation("page_number must be at least 1, got %d", p.Number)
	}
	if p.Size < 0 || (maxSize > 0 && p.Size > maxSize) {
		return apierr.Validation("page_size must be between 0 and %d, got %d", maxSize, p.Size)
	}
	return nil
}

// Query bundles one list request.
type Query struct {
	Filters  Filters
	Operator LogicalOp
	Sort     Sort
	Page     Page
}

// Apply filters, sorts and paginates items. fields flattens one item
// into its filterable field map. The returned total is the filtered
// count when the page requests it, otherwise 0.
func Apply[T any](items []T, fields func(T) map[string]any, q Query, maxPageSize int) ([]T, int, error) {
	if err := q.Page.Validate(maxPageSize); err != nil {
		return nil, 0, err
	}
	op := q.Operator
	if op == "" {
		op = LogicalAnd
	}

	kept := make([]T, 0, len(items))
	keptFields := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := fields(item)
		ok, err := matches(row, q.Filters, op)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			kept = append(kept, item)
			keptFields = append(keptFields, row)
		}
	}

	if len(q.Sort) > 0 {
		idx := make([]int, len(kept))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return sortLess(keptFields[idx[a]], keptFields[idx[b]], q.Sort)
		})
		sorted := make([]T, len(kept))
		for i, j := range idx {
			sorted[i] = kept[j]
		}
		kept = sorted
	}

	total := 0
	if q.Page.WithTotal {
		total = len(kept)
	}

	if q.Page.Size == 0 {
		if q.Page.Number > 1 {
			return []T{}, total, nil
		}
		return kept, total, nil
	}
	offset := (q.Page.Number - 1) * q.Page.Size
	if offset >= len(kept) {
		return []T{}, total, nil
	}
	end := offset + q.Page.Size
	if end > len(kept) {
		end = len(kept)
	}
	return kept[offset:end], total, nil
}

// DistinctValues lists the unique values of one field across items,
// optionally narrowed by a case-insensitive search string, capped at
// limit entries. Used by header endpoints for filter autocomplete.
func DistinctValues[T any](items []T, fields func(T) map[string]any, field, search string, limit int) []any {
	seen := make(map[string]bool)
	out := make([]any, 0)
	for _, item := range items {
		v, ok := fields(item)[field]
		if !ok || v == nil {
			continue
		}
		if search != "" {
			s, isStr := v.(string)
			if !isStr || !strings.Contains(strings.ToLower(s), strings.ToLower(search)) {
				continue
			}
		}
		key := fmt.Sprintf("%v", v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		c, err := compareValues(out[i], out[j])
		return err == nil && c < 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func matches(row map[string]any, filters Filters, op LogicalOp) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}
	// Deterministic evaluation order keeps error messages stable.
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ok, err := matchField(row, name, filters[name])
		if err != nil {
			return false, err
		}
		if op == LogicalAnd && !ok {
			return false, nil
		}
		if op == LogicalOr && ok {
			return true, nil
		}
	}
	return op == LogicalAnd, nil
}

func matchField(row map[string]any, field string, cond Condition) (bool, error) {
	if field == WildcardField {
		for _, v := range row {
			if _, isStr := v.(string); !isStr {
				continue
			}
			ok, err := matchValue(v, cond)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return matchValue(row[field], cond)
}

func matchValue(v any, cond Condition) (bool, error) {
	op := cond.Op
	if op == "" {
		op = OpEq
	}
	switch op {
	case OpEq:
		for _, want := range cond.Values {
			c, err := compareValues(v, want)
			if err == nil && c == 0 {
				return true, nil
			}
		}
		return false, nil
	case OpNe:
		for _, want := range cond.Values {
			c, err := compareValues(v, want)
			if err == nil && c == 0 {
				return false, nil
			}
		}
		return true, nil
	case OpContains:
		s, ok := v.(string)
		if !ok {
			return false, nil
		}
		for _, want := range cond.Values {
			w, ok := want.(string)
			if ok && strings.Contains(strings.ToLower(s), strings.ToLower(w)) {
				return true, nil
			}
		}
		return false, nil
	case OpGe, OpGt, OpLe, OpLt:
		if len(cond.Values) == 0 {
			return false, apierr.Validation("operator %q requires a comparison value", op)
		}
		c, err := compareValues(v, cond.Values[0])
		if err != nil {
			return false, nil
		}
		switch op {
		case OpGe:
			return c >= 0, nil
		case OpGt:
			return c > 0, nil
		case OpLe:
			return c <= 0, nil
		default:
			return c < 0, nil
		}
	case OpBetween:
		if len(cond.Values) != 2 {
			return false, apierr.Validation("operator %q requires exactly two values", op)
		}
		lo, err := compareValues(v, cond.Values[0])
		if err != nil {
			return false, nil
		}
		hi, err := compareValues(v, cond.Values[1])
		if err != nil {
			return false, nil
		}
		return lo >= 0 && hi <= 0, nil
	}
	return false, apierr.Validation("unknown filter operator %q", op)
}

func sortLess(a, b map[string]any, keys Sort) bool {
	for _, k := range keys {
		c, err := compareValues(a[k.Field], b[k.Field])
		if err != nil || c == 0 {
			continue
		}
		if k.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}

// compareValues orders two field values. Numeric kinds widen to
// float64; times compare chronologically; strings lexically. Nil sorts
// first. Mismatched kinds report an error and the pair is treated as
// unordered by callers.
func compareValues(a, b any) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if at, ok := asTime(a); ok {
		bt, ok := asTime(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare time with %T", b)
		}
		switch {
		case at.Before(bt):
			return -1, nil
		case at.After(bt):
			return 1, nil
		}
		return 0, nil
	}
	if af, ok := asFloat(a); ok {
		bf, ok := asFloat(b)
		if !ok {
			return 0, fmt.Errorf("cannot compare number with %T", b)
		}
		switch {
		case af < bf:
			return -1, nil
		case af > bf:
			return 1, nil
		}
		return 0, nil
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare bool with %T", b)
		}
		switch {
		case ab == bb:
			return 0, nil
		case !ab:
			return -1, nil
		default:
			return 1, nil
		}
	}
	as, ok := a.(string)
	if !ok {
		return 0, fmt.Errorf("unsupported comparison type %T", a)
	}
	bs, ok := b.(string)
	if !ok {
		return 0, fmt.Errorf("cannot compare string with %T", b)
	}
	return strings.Compare(as, bs), nil
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}
