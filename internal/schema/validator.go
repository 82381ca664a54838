// Package schema checks tool arguments against the JSON Schema each tool
// declares.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Validator compiles each distinct schema once and reuses it.
type Validator struct {
	compiled sync.Map // canonical schema JSON -> *gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate reports whether args (a JSON object) satisfies schemaDoc, which
// may be a map, a struct or raw JSON. Violations are joined into a single
// message the model can act on.
func (v *Validator) Validate(schemaDoc any, args string) error {
	s, err := v.compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("invalid tool schema: %w", err)
	}
	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	res, err := s.Validate(gojsonschema.NewStringLoader(args))
	if err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if res.Valid() {
		return nil
	}

	problems := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		problems = append(problems, describe(e))
	}
	return fmt.Errorf("invalid arguments: %s", strings.Join(problems, "; "))
}

func (v *Validator) compile(schemaDoc any) (*gojsonschema.Schema, error) {
	var raw []byte
	switch d := schemaDoc.(type) {
	case string:
		raw = []byte(d)
	case json.RawMessage:
		raw = d
	default:
		b, err := json.Marshal(schemaDoc)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	key := string(raw)
	if cached, ok := v.compiled.Load(key); ok {
		return cached.(*gojsonschema.Schema), nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, err
	}
	actual, _ := v.compiled.LoadOrStore(key, s)
	return actual.(*gojsonschema.Schema), nil
}

// describe drops gojsonschema's "(root)" prefix for top-level problems.
func describe(e gojsonschema.ResultError) string {
	if e.Field() == "(root)" {
		return e.Description()
	}
	return e.Field() + ": " + e.Description()
}
