package msgplan

import (
	"encoding/json"
	"fmt"

	rlerrors "github.com/roverlog/roverlog/internal/errors"
	"github.com/roverlog/roverlog/pkg/types"
)

// JSONBuilder builds plans for the "json" message encoding. Channels may be
// schemaless or carry a "jsonschema" schema whose top-level properties
// become the datatype's fields.
type JSONBuilder struct{}

// Encoding returns "json".
func (*JSONBuilder) Encoding() string { return "json" }

// jsonSchemaDoc is the subset of JSON Schema the plan extracts fields from.
type jsonSchemaDoc struct {
	Type       string `json:"type"`
	Properties map[string]struct {
		Type string `json:"type"`
	} `json:"properties"`
}

// Build parses the schema blob if present. A malformed blob fails plan
// construction.
func (*JSONBuilder) Build(schema *SchemaInfo) (Plan, error) {
	plan := &jsonPlan{datatypes: make(map[string]types.Datatype)}
	if schema == nil {
		return plan, nil
	}
	if schema.Encoding != "jsonschema" {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			fmt.Sprintf("json channels require a jsonschema schema, got %q", schema.Encoding), nil)
	}

	var doc jsonSchemaDoc
	if err := json.Unmarshal(schema.Data, &doc); err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"malformed jsonschema blob for schema "+schema.Name, err)
	}

	dt := types.Datatype{Name: schema.Name}
	for name, prop := range doc.Properties {
		dt.Fields = append(dt.Fields, types.Field{Name: name, Type: prop.Type})
	}
	sortFields(dt.Fields)
	plan.datatypes[schema.Name] = dt
	return plan, nil
}

type jsonPlan struct {
	datatypes map[string]types.Datatype
}

func (p *jsonPlan) Datatypes() map[string]types.Datatype {
	return p.datatypes
}

// Decode unmarshals the payload into a generic value.
func (p *jsonPlan) Decode(data []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, rlerrors.NewPlanError(rlerrors.CodePlanFailed,
			"json payload decode failed", err)
	}
	return v, nil
}
