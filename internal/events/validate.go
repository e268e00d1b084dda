package events

import (
	"strconv"
	"time"

	"scrumgame/internal/domain"
)

// ValidateData checks data against the type's schema: required fields present,
// declared types matching, and every typed value parseable. Undeclared fields pass.
func (t Type) ValidateData(data []domain.DataField) error {
	seen := make(map[string]bool, len(data))
	for i, f := range data {
		if f.Key == "" {
			return domain.Invalid("data["+strconv.Itoa(i)+"]", "key required")
		}
		if seen[f.Key] {
			return domain.Invalid(f.Key, "duplicate field")
		}
		seen[f.Key] = true
		if err := checkValue(f); err != nil {
			return err
		}
	}
	for _, s := range t.Schema {
		f, ok := lookup(data, s.Name)
		if !ok {
			if s.Required {
				return domain.Invalid(s.Name, "required by %s", t.Identifier)
			}
			continue
		}
		if f.Type != s.Type {
			return domain.Invalid(s.Name, "expected %s, got %s", s.Type, f.Type)
		}
	}
	return nil
}

func checkValue(f domain.DataField) error {
	var err error
	switch f.Type {
	case domain.DataString:
	case domain.DataInteger:
		_, err = strconv.ParseInt(f.Value, 10, 64)
	case domain.DataDouble:
		_, err = strconv.ParseFloat(f.Value, 64)
	case domain.DataBoolean:
		_, err = strconv.ParseBool(f.Value)
	case domain.DataDateTime:
		_, err = time.Parse(time.RFC3339, f.Value)
	default:
		return domain.Invalid(f.Key, "unknown data type %q", f.Type)
	}
	if err != nil {
		return domain.Invalid(f.Key, "value %q is not a valid %s", f.Value, f.Type)
	}
	return nil
}

func lookup(data []domain.DataField, key string) (domain.DataField, bool) {
	for _, f := range data {
		if f.Key == key {
			return f, true
		}
	}
	return domain.DataField{}, false
}
