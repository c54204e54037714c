package insights

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Lyzr-Apps/data-pattern-amazing-flow-yq7q/internal/jsonvalue"
)

//go:embed insights_schema.json
var insightsSchemaJSON string

var (
	compileOnce    sync.Once
	insightsSchema *jsonschema.Schema
	compileErr     error
)

// Schema returns the compiled JSON Schema describing a well-formed insights
// document.
func Schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("insights_schema.json", strings.NewReader(insightsSchemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, err := compiler.Compile("insights_schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile insights schema: %w", err)
			return
		}
		insightsSchema = schema
	})
	return insightsSchema, compileErr
}

// conformance lists where doc departs from the schema. The normalizer still
// decodes such documents; the list only feeds warnings and metrics.
func conformance(doc jsonvalue.Value) []string {
	schema, err := Schema()
	if err != nil {
		return []string{err.Error()}
	}
	err = schema.Validate(doc.Interface())
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	collectLeaves(ve, &out)
	sort.Strings(out)
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, ve.Message))
		return
	}
	for _, c := range ve.Causes {
		collectLeaves(c, out)
	}
}
