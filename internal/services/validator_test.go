package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/carebridge/backend/internal/apperrors"
)

const childcareSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["children_count"],
	"properties": {
		"children_count": {"type": "integer", "minimum": 1, "maximum": 6},
		"age_range": {"type": "string"},
		"special_needs": {"type": "boolean"}
	},
	"additionalProperties": false
}`

func writeSchemaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "childcare.json"), []byte(childcareSchema), 0o644); err != nil {
		t.Fatalf("write schema: %v", err)
	}
	return dir
}

func TestDetailsValidator(t *testing.T) {
	v, err := NewDetailsValidator(writeSchemaDir(t))
	if err != nil {
		t.Fatalf("NewDetailsValidator: %v", err)
	}

	if err := v.ValidateDetails("childcare", []byte(`{"children_count": 2, "age_range": "3-5"}`)); err != nil {
		t.Errorf("valid details rejected: %v", err)
	}

	cases := []struct {
		name    string
		details string
	}{
		{"missing required field", `{"age_range": "3-5"}`},
		{"below minimum", `{"children_count": 0}`},
		{"unknown field", `{"children_count": 2, "pets": true}`},
		{"not json", `{"children_count": `},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateDetails("childcare", []byte(tc.details))
			if !apperrors.IsValidation(err) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDetailsValidator_UnknownCategoryAcceptsAnything(t *testing.T) {
	v, err := NewDetailsValidator(writeSchemaDir(t))
	if err != nil {
		t.Fatalf("NewDetailsValidator: %v", err)
	}
	if err := v.ValidateDetails("housekeeping", []byte(`{"whatever": true}`)); err != nil {
		t.Errorf("category without schema should accept any details, got %v", err)
	}
}

func TestDetailsValidator_BadSchemaDir(t *testing.T) {
	if _, err := NewDetailsValidator(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing schema dir")
	}
}
