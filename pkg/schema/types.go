package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Type defines the contract for field validation.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "digits(3)").
	Name() string
	// Validate checks if a value conforms to this type.
	Validate(value any) error
}

// StringType validates non-empty string values.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if s == "" {
		return fmt.Errorf("must not be empty")
	}
	return nil
}

// DigitsType validates strings made only of ASCII digits. Leading zeros are
// significant, so numbers are rejected.
type DigitsType struct {
	min, max int
}

func (t *DigitsType) Name() string {
	if t.min == t.max {
		return fmt.Sprintf("digits(%d)", t.min)
	}
	return fmt.Sprintf("digits(%d-%d)", t.min, t.max)
}

func (t *DigitsType) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected digit string, got %T", value)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return fmt.Errorf("must contain only digits")
		}
	}
	if n := len(s); n < t.min || n > t.max {
		if t.min == t.max {
			return fmt.Errorf("must have %d digits, got %d", t.min, n)
		}
		return fmt.Errorf("must have %d to %d digits, got %d", t.min, t.max, n)
	}
	return nil
}

// CustomType applies a user-defined validation function.
type CustomType struct {
	name     string
	validate func(any) error
}

func (t *CustomType) Name() string { return t.name }

func (t *CustomType) Validate(value any) error {
	return t.validate(value)
}

// --- Factory Functions ---

// String creates a non-empty string type validator.
func String() Type { return &StringType{} }

// Digits creates a validator for digit strings of min to max characters.
func Digits(min, max int) Type {
	if min < 1 || max < min {
		panic(fmt.Sprintf("schema: invalid digits bounds %d-%d", min, max))
	}
	return &DigitsType{min: min, max: max}
}

// Custom creates a custom type validator with a user-defined function.
func Custom(name string, validate func(any) error) Type {
	return &CustomType{name: name, validate: validate}
}

// ParseType converts a type name back to a Type.
// Supports "string", "digits(n)" and "digits(m-n)".
func ParseType(typeStr string) (Type, error) {
	if typeStr == "string" {
		return String(), nil
	}

	inner, ok := strings.CutPrefix(typeStr, "digits(")
	if !ok || !strings.HasSuffix(inner, ")") {
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
	inner = strings.TrimSuffix(inner, ")")
	lo, hi, ranged := strings.Cut(inner, "-")
	if !ranged {
		hi = lo
	}
	min, err1 := strconv.Atoi(lo)
	max, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil || min < 1 || max < min {
		return nil, fmt.Errorf("invalid digits bounds: %s", typeStr)
	}
	return Digits(min, max), nil
}

// ParseTypeMap converts a map of field names to type strings into a Schema.
// Example: {"bank_code": "digits(3)", "branch": "string"}
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema)
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
