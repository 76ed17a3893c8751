package dynschema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kasuganosora/memdb/internal/value"
)

// jsonSchemaDoc is the narrow slice of JSON Schema's vocabulary
// DynamicSchema actually needs: an object schema's direct properties and
// which of them are required. Nested/combinator keywords ($ref, oneOf,
// additionalProperties, ...) are left to the jsonschema library's own
// structural validation below; this package only cares about the flat
// field list a persisted type's row maps onto.
type jsonSchemaDoc struct {
	Type       string                    `json:"type"`
	Properties map[string]jsonSchemaProp `json:"properties"`
	Required   []string                  `json:"required"`
}

type jsonSchemaProp struct {
	Type string `json:"type"`
}

// jsonSchemaType maps a JSON Schema "type" keyword value onto the engine's
// DataType. "object" maps to JSON and "array" to an array of Unknown
// since this package does not model nested item schemas — a dynamic field is always one SQL
// column.
func jsonSchemaType(t string) value.DataType {
	switch t {
	case "string":
		return value.Text()
	case "integer":
		return value.Integer()
	case "number":
		return value.Float()
	case "boolean":
		return value.Boolean()
	case "object":
		return value.JSON()
	case "array":
		return value.Array(value.Unknown())
	default:
		return value.Unknown()
	}
}

// FromJSONSchema builds a DynamicSchema for tableName from a JSON Schema
// document describing an object's properties. raw is first compiled
// through santhosh-tekuri/jsonschema so a structurally malformed schema
// (bad keyword types, invalid regex patterns, unresolvable $refs, ...) is
// rejected before this package trusts anything in it; the field list
// itself is then read back out of the same bytes through a local struct
// covering just {type, properties, required}, since DynamicSchema has no
// use for the rest of JSON Schema's vocabulary (oneOf/allOf/$ref/format/...).
func FromJSONSchema(tableName string, raw []byte) (DynamicSchema, error) {
	compiled, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return DynamicSchema{}, fmt.Errorf("dynschema: invalid JSON: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceID := "mem://dynschema/" + tableName
	if err := c.AddResource(resourceID, compiled); err != nil {
		return DynamicSchema{}, fmt.Errorf("dynschema: register JSON schema: %w", err)
	}
	if _, err := c.Compile(resourceID); err != nil {
		return DynamicSchema{}, fmt.Errorf("dynschema: compile JSON schema: %w", err)
	}

	var doc jsonSchemaDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DynamicSchema{}, fmt.Errorf("dynschema: decode JSON schema: %w", err)
	}
	if doc.Type != "" && doc.Type != "object" {
		return DynamicSchema{}, fmt.Errorf("dynschema: JSON schema root type %q is not \"object\"", doc.Type)
	}

	required := make(map[string]bool, len(doc.Required))
	for _, r := range doc.Required {
		required[r] = true
	}

	names := make([]string, 0, len(doc.Properties))
	for name := range doc.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	ds := DynamicSchema{TableName: tableName, Fields: make([]Field, 0, len(names))}
	for _, name := range names {
		prop := doc.Properties[name]
		ds.Fields = append(ds.Fields, Field{
			Name:     name,
			Type:     jsonSchemaType(prop.Type),
			Nullable: !required[name],
		})
	}
	ds.index()
	return ds, nil
}
