package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Clause is a single field == value constraint.
type Clause struct {
	Field string
	Value any
}

// Filter is a conjunction of equality clauses. The zero Filter matches every record.
type Filter []Clause

func Where(field string, value any) Filter {
	return Filter{{Field: field, Value: value}}
}

func (f Filter) And(field string, value any) Filter {
	out := make(Filter, 0, len(f)+1)
	out = append(out, f...)
	return append(out, Clause{Field: field, Value: value})
}

// Match reports whether fields satisfy every clause. Values are compared after JSON
// normalization so that 50 and 50.0 are equal, as they are once persisted.
func (f Filter) Match(fields Fields) bool {
	for _, c := range f {
		got, ok := fields[c.Field]
		if !ok {
			return false
		}
		if !reflect.DeepEqual(normalize(got), normalize(c.Value)) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	if len(f) == 0 {
		return "*"
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, fmt.Sprintf("%s==%v", c.Field, c.Value))
	}
	return strings.Join(parts, " AND ")
}

func normalize(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
