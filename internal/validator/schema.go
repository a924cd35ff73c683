package validator

import (
	"encoding/json"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

var (
	schemaOnce sync.Once
	resolved   *jsonschema.Resolved
	schemaErr  error
)

func ptr[T any](v T) *T { return &v }

// Schema returns the JSON schema every model reply must satisfy.
func Schema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"answer"},
		Properties: map[string]*jsonschema.Schema{
			"answer": {
				Type:        "string",
				MinLength:   ptr(1),
				Description: "Answer to the question, grounded only in the supplied context.",
			},
			"citations": {
				Types:       []string{"array", "null"},
				Description: "Documents the answer relies on.",
				Items: &jsonschema.Schema{
					Type:     "object",
					Required: []string{"document_title"},
					Properties: map[string]*jsonschema.Schema{
						"document_title": {Type: "string", MinLength: ptr(1), Description: "Exact title of a context document."},
						"chunk_id":       {Types: []string{"string", "null"}, Description: "Chunk id shown next to the snippet."},
					},
				},
			},
			"caveats": {
				Types:       []string{"string", "null"},
				Description: "Uncertainty or missing information, if any.",
			},
		},
	}
}

// SchemaJSON renders Schema for inclusion in prompts.
func SchemaJSON() string {
	data, err := json.MarshalIndent(Schema(), "", "  ")
	if err != nil {
		return `{"type":"object","required":["answer"]}`
	}
	return string(data)
}

func resolvedSchema() (*jsonschema.Resolved, error) {
	schemaOnce.Do(func() {
		resolved, schemaErr = Schema().Resolve(nil)
	})
	return resolved, schemaErr
}
