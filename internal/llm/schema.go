package llm

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

type SchemaType string

const (
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
)

// Schema is the subset of JSON Schema used to describe tool parameters.
type Schema struct {
	Type        SchemaType
	Description string
	Enum        []string
	Items       *Schema
	Properties  map[string]*Schema
	Required    []string
}

func schemaFor(rt reflect.Type) *Schema {
	for rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	switch rt.Kind() {
	case reflect.Struct:
		return objectSchema(rt)
	case reflect.Map:
		return &Schema{Type: SchemaTypeObject}
	case reflect.Slice, reflect.Array:
		return &Schema{Type: SchemaTypeArray, Items: schemaFor(rt.Elem())}
	case reflect.Bool:
		return &Schema{Type: SchemaTypeBoolean}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: SchemaTypeNumber}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: SchemaTypeInteger}
	}
	return &Schema{Type: SchemaTypeString}
}

// fieldTags is what a struct field contributes to its object schema.
type fieldTags struct {
	name     string
	optional bool
	skip     bool
	desc     string
	enum     []string
}

func readTags(f reflect.StructField) fieldTags {
	tags := fieldTags{name: f.Name, desc: f.Tag.Get("desc")}
	if raw, ok := f.Tag.Lookup("json"); ok {
		if raw == "-" {
			return fieldTags{skip: true}
		}
		name, opts, _ := strings.Cut(raw, ",")
		if name != "" {
			tags.name = name
		}
		tags.optional = slices.Contains(strings.Split(opts, ","), "omitempty")
	}
	if f.Type.Kind() == reflect.Pointer {
		tags.optional = true
	}
	if enum := f.Tag.Get("enum"); enum != "" {
		tags.enum = strings.Split(enum, "|")
	}
	return tags
}

func objectSchema(rt reflect.Type) *Schema {
	s := &Schema{
		Type:       SchemaTypeObject,
		Properties: map[string]*Schema{},
		Required:   []string{},
	}
	for _, f := range reflect.VisibleFields(rt) {
		if !f.IsExported() || f.Anonymous {
			continue
		}
		tags := readTags(f)
		if tags.skip {
			continue
		}
		prop := schemaFor(f.Type)
		prop.Description = tags.desc
		prop.Enum = tags.enum
		s.Properties[tags.name] = prop
		if !tags.optional {
			s.Required = append(s.Required, tags.name)
		}
	}
	return s
}

// checkEnums reports the first top-level string argument whose value is not
// listed in its property's enum. Case and surrounding space are ignored.
func (s *Schema) checkEnums(args json.RawMessage) error {
	if s == nil || len(s.Properties) == 0 {
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(args, &fields); err != nil {
		return nil
	}
	for name, prop := range s.Properties {
		if len(prop.Enum) == 0 {
			continue
		}
		got, ok := fields[name].(string)
		if !ok || strings.TrimSpace(got) == "" {
			continue
		}
		allowed := slices.ContainsFunc(prop.Enum, func(e string) bool {
			return strings.EqualFold(e, strings.TrimSpace(got))
		})
		if !allowed {
			return fmt.Errorf("argument %q: %q is not one of %s", name, got, strings.Join(prop.Enum, ", "))
		}
	}
	return nil
}

// Map renders the schema as the JSON-schema object used in function-calling
// tool declarations.
func (s *Schema) Map() map[string]any {
	if s == nil {
		return nil
	}
	m := map[string]any{"type": s.Type}
	if s.Description != "" {
		m["description"] = s.Description
	}
	if len(s.Enum) > 0 {
		m["enum"] = s.Enum
	}
	if s.Items != nil {
		m["items"] = s.Items.Map()
	}
	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, prop := range s.Properties {
			props[name] = prop.Map()
		}
		m["properties"] = props
	}
	if len(s.Required) > 0 {
		m["required"] = s.Required
	}
	return m
}
