package prompta

import (
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"
	"github.com/zoobzio/sentinel"
)

// Schema validates raw input and decodes it into I.
type Schema[I any] struct {
	document string
	compiled *gojsonschema.Schema
}

// SchemaFor derives a JSON Schema from the struct type I using its json tags.
// Fields without omitempty are required; a desc tag becomes the description.
func SchemaFor[I any]() (*Schema[I], error) {
	return SchemaFromJSON[I](generateJSONSchema[I]())
}

// MustSchemaFor is SchemaFor that panics on error.
func MustSchemaFor[I any]() *Schema[I] {
	s, err := SchemaFor[I]()
	if err != nil {
		panic(err)
	}
	return s
}

// SchemaFromJSON compiles a JSON Schema document for input type I.
func SchemaFromJSON[I any](document string) (*Schema[I], error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return nil, errors.Wrap(err, "compile schema")
	}
	return &Schema[I]{document: document, compiled: compiled}, nil
}

// Document returns the JSON Schema source.
func (s *Schema[I]) Document() string {
	return s.document
}

// Validate checks raw against the schema and decodes it into I.
// raw may be JSON bytes, a JSON string, json.RawMessage or any value that
// marshals to JSON.
func (s *Schema[I]) Validate(raw any) (I, error) {
	var out I

	doc, err := toJSON(raw)
	if err != nil {
		return out, &ValidationError{Err: err}
	}

	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return out, &ValidationError{Err: err}
	}
	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}
		return out, &ValidationError{Errors: descriptions}
	}

	if err := json.Unmarshal(doc, &out); err != nil {
		return out, &ValidationError{Err: errors.Wrap(err, "decode input")}
	}
	return out, nil
}

// decodeInput converts raw into I without validation.
func decodeInput[I any](raw any) (I, error) {
	if in, ok := raw.(I); ok {
		return in, nil
	}

	var out I
	doc, err := toJSON(raw)
	if err != nil {
		return out, &ValidationError{Err: err}
	}
	if err := json.Unmarshal(doc, &out); err != nil {
		return out, &ValidationError{Err: errors.Wrap(err, "decode input")}
	}
	return out, nil
}

func toJSON(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		return v, nil
	case string:
		if json.Valid([]byte(v)) {
			return []byte(v), nil
		}
	}
	doc, err := json.Marshal(raw)
	if err != nil {
		return nil, errors.Wrap(err, "encode input")
	}
	return doc, nil
}

// generateJSONSchema creates a JSON Schema from a Go struct type using sentinel.
func generateJSONSchema[T any]() string {
	metadata := sentinel.Inspect[T]()

	schema := map[string]interface{}{
		"type":                 "object",
		"properties":           buildProperties(metadata.Fields),
		"required":             buildRequiredFields(metadata.Fields),
		"additionalProperties": false,
	}

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "{}"
	}

	return string(jsonBytes)
}

// buildProperties converts field metadata to JSON Schema properties.
func buildProperties(fields []sentinel.FieldMetadata) map[string]interface{} {
	properties := make(map[string]interface{})

	for _, field := range fields {
		jsonName := getJSONFieldName(field)
		if jsonName == "-" {
			continue
		}

		prop := map[string]interface{}{
			"type": goTypeToJSONType(field.Type),
		}
		if desc, ok := field.Tags["desc"]; ok {
			prop["description"] = desc
		}
		properties[jsonName] = prop
	}

	return properties
}

// buildRequiredFields lists fields without omitempty.
func buildRequiredFields(fields []sentinel.FieldMetadata) []string {
	required := []string{}

	for _, field := range fields {
		jsonName := getJSONFieldName(field)
		if jsonName == "-" {
			continue
		}
		if !hasOmitempty(field) {
			required = append(required, jsonName)
		}
	}

	return required
}

// getJSONFieldName extracts the JSON field name from metadata.
func getJSONFieldName(field sentinel.FieldMetadata) string {
	if jsonTag, ok := field.Tags["json"]; ok {
		parts := strings.Split(jsonTag, ",")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
	}

	// Default to lowercase field name
	return strings.ToLower(field.Name[:1]) + field.Name[1:]
}

func hasOmitempty(field sentinel.FieldMetadata) bool {
	if jsonTag, ok := field.Tags["json"]; ok {
		return strings.Contains(jsonTag, "omitempty")
	}
	return false
}

// goTypeToJSONType maps Go types to JSON Schema types.
func goTypeToJSONType(goType string) string {
	goType = strings.TrimPrefix(goType, "*")
	switch {
	case strings.HasPrefix(goType, "string"):
		return "string"
	case strings.HasPrefix(goType, "int"), strings.HasPrefix(goType, "uint"):
		return "integer"
	case strings.HasPrefix(goType, "float"):
		return "number"
	case strings.HasPrefix(goType, "bool"):
		return "boolean"
	case strings.HasPrefix(goType, "[]"):
		return "array"
	default:
		return "object"
	}
}
