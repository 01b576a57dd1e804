// Package docmatch implements the document semantics shared by every store
// backend: canonical values, dotted-path patches, preconditions, filters
// and ordering.
package docmatch

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"ridemarket/internal/ports"
)

// Normalize converts arbitrary Go values into canonical JSON values
// (float64, string, bool, nil, []any, map[string]any).
func Normalize(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("docmatch: encode fields: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docmatch: decode fields: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	dropNulls(out)
	return out, nil
}

// dropNulls removes null members so that absent and null are the same state.
func dropNulls(m map[string]any) {
	for k, v := range m {
		switch t := v.(type) {
		case nil:
			delete(m, k)
		case map[string]any:
			dropNulls(t)
		}
	}
}

// NormalizeValue converts a single value to its canonical JSON form.
func NormalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docmatch: encode value: %w", err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("docmatch: decode value: %w", err)
	}
	return out, nil
}

// Clone deep-copies canonical fields.
func Clone(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return Clone(t)
	case []any:
		cp := make([]any, len(t))
		for i := range t {
			cp[i] = cloneValue(t[i])
		}
		return cp
	default:
		return v
	}
}

// CloneDocument deep-copies a document.
func CloneDocument(doc *ports.Document) *ports.Document {
	if doc == nil {
		return nil
	}
	cp := *doc
	cp.Fields = Clone(doc.Fields)
	return &cp
}

// Lookup resolves a dotted path.
func Lookup(fields map[string]any, path string) (any, bool) {
	cur := any(fields)
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ApplyPatch returns a copy of fields with patch applied. Nil values delete
// the addressed field; missing intermediate maps are created.
func ApplyPatch(fields map[string]any, patch ports.Patch) (map[string]any, error) {
	out := Clone(fields)
	if out == nil {
		out = map[string]any{}
	}
	keys := make([]string, 0, len(patch))
	for k := range patch {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, path := range keys {
		value, err := NormalizeValue(patch[path])
		if err != nil {
			return nil, err
		}
		parts := strings.Split(path, ".")
		node := out
		for _, part := range parts[:len(parts)-1] {
			next, ok := node[part].(map[string]any)
			if !ok {
				if value == nil {
					node = nil
					break
				}
				next = map[string]any{}
				node[part] = next
			}
			node = next
		}
		if node == nil {
			continue
		}
		leaf := parts[len(parts)-1]
		if value == nil {
			delete(node, leaf)
		} else {
			node[leaf] = value
		}
	}
	return out, nil
}

// CheckPreconditions returns ports.ErrPreconditionFailed if any condition fails.
func CheckPreconditions(fields map[string]any, conds []ports.Precondition) error {
	for _, c := range conds {
		got, present := Lookup(fields, c.Field)
		switch c.Op {
		case ports.PreAbsent:
			if present && got != nil {
				return fmt.Errorf("%w: %s is set", ports.ErrPreconditionFailed, c.Field)
			}
		case ports.PrePresent:
			if !present || got == nil {
				return fmt.Errorf("%w: %s is not set", ports.ErrPreconditionFailed, c.Field)
			}
		default:
			want, err := NormalizeValue(c.Value)
			if err != nil {
				return err
			}
			if !present || Compare(got, want) != 0 {
				return fmt.Errorf("%w: %s changed", ports.ErrPreconditionFailed, c.Field)
			}
		}
	}
	return nil
}

// Matches reports whether fields satisfy every filter.
func Matches(fields map[string]any, filters []ports.Filter) bool {
	for _, f := range filters {
		got, present := Lookup(fields, f.Field)
		want, err := NormalizeValue(f.Value)
		if err != nil {
			return false
		}
		if f.Op == ports.OpIn {
			list, _ := want.([]any)
			found := false
			for _, candidate := range list {
				if present && Compare(got, candidate) == 0 {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if f.Op == ports.OpNe {
			if present && Compare(got, want) == 0 {
				return false
			}
			continue
		}
		if !present {
			return false
		}
		c := Compare(got, want)
		ok := false
		switch f.Op {
		case ports.OpEq:
			ok = c == 0
		case ports.OpLt:
			ok = c < 0
		case ports.OpLte:
			ok = c <= 0
		case ports.OpGt:
			ok = c > 0
		case ports.OpGte:
			ok = c >= 0
		}
		if !ok {
			return false
		}
	}
	return true
}

// Compare orders canonical values: nil < bool < number < string.
// Strings that both parse as RFC 3339 timestamps compare chronologically.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return cmp(ra, rb)
	}
	switch x := a.(type) {
	case bool:
		y := b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	case float64:
		y := b.(float64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		default:
			return 0
		}
	case string:
		y := b.(string)
		if tx, err := time.Parse(time.RFC3339Nano, x); err == nil {
			if ty, err := time.Parse(time.RFC3339Nano, y); err == nil {
				return tx.Compare(ty)
			}
		}
		return strings.Compare(x, y)
	case nil:
		return 0
	default:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return strings.Compare(string(ja), string(jb))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Less orders two documents for q. Documents missing the order field sort first.
func Less(a, b *ports.Document, q ports.Query) bool {
	if q.OrderBy != "" {
		va, _ := Lookup(a.Fields, q.OrderBy)
		vb, _ := Lookup(b.Fields, q.OrderBy)
		if c := Compare(va, vb); c != 0 {
			if q.Desc {
				return c > 0
			}
			return c < 0
		}
	}
	if a.Seq != b.Seq {
		if q.Desc {
			return a.Seq > b.Seq
		}
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}

// Select filters, orders and truncates docs in place order for q.
func Select(docs []*ports.Document, q ports.Query) []*ports.Document {
	out := make([]*ports.Document, 0, len(docs))
	for _, d := range docs {
		if Matches(d.Fields, q.Filters) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return Less(out[i], out[j], q) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
