package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/carebridge/backend/internal/apperrors"
)

// DetailsValidator validates category-specific job detail payloads against
// the JSON schemas shipped in the schema directory, one schema file per
// category. Categories without a schema accept any details.
type DetailsValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewDetailsValidator compiles every *.json schema in schemaDir. The file
// name (minus extension) is the category it applies to.
func NewDetailsValidator(schemaDir string) (*DetailsValidator, error) {
	entries, err := os.ReadDir(schemaDir)
	if err != nil {
		return nil, fmt.Errorf("read schema dir %q: %w", schemaDir, err)
	}
	schemas := make(map[string]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		category := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		path := filepath.Join(schemaDir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(e.Name(), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema %q: %w", path, err)
		}
		schema, err := compiler.Compile(e.Name())
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", path, err)
		}
		schemas[category] = schema
	}
	return &DetailsValidator{schemas: schemas}, nil
}

// ValidateDetails checks a details payload against its category schema.
func (v *DetailsValidator) ValidateDetails(category string, details []byte) error {
	schema, ok := v.schemas[category]
	if !ok {
		return nil
	}
	var doc any
	if err := json.Unmarshal(details, &doc); err != nil {
		return apperrors.Validation("details is not valid JSON")
	}
	if err := schema.Validate(doc); err != nil {
		return apperrors.Validation("details does not match the %s schema: %v", category, err)
	}
	return nil
}
