// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

// schemaBaseID prefixes the $id of every published request schema.
const schemaBaseID = "https://recipebox.dev/schemas/"

// requestSchema is one request body type published under /api/schemas/{name}.
type requestSchema struct {
	title   string
	example any

	once     sync.Once
	raw      []byte
	compiled *jschema.Schema
	err      error
}

// requestSchemas maps schema names to the body types they describe.
var requestSchemas = map[string]*requestSchema{
	"register":       {title: "Registration request", example: &registerRequest{}},
	"login":          {title: "Login request", example: &loginRequest{}},
	"reset-request":  {title: "Password reset request", example: &resetRequestRequest{}},
	"reset-verify":   {title: "Password reset code check", example: &resetVerifyRequest{}},
	"reset-complete": {title: "Password reset completion", example: &resetCompleteRequest{}},
}

// SchemaNames lists the published schema names in sorted order.
func SchemaNames() []string {
	names := make([]string, 0, len(requestSchemas))
	for name := range requestSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GenerateSchema returns the JSON Schema document for a request body.
func GenerateSchema(name string) ([]byte, error) {
	rs, ok := requestSchemas[name]
	if !ok {
		return nil, oops.Code("SCHEMA_NOT_FOUND").With("schema", name).Errorf("unknown schema %q", name)
	}
	if err := rs.load(name); err != nil {
		return nil, err
	}
	return rs.raw, nil
}

// load reflects and compiles the schema once.
func (rs *requestSchema) load(name string) error {
	rs.once.Do(func() {
		r := jsonschema.Reflector{DoNotReference: true}
		schema := r.Reflect(rs.example)
		schema.ID = jsonschema.ID(schemaBaseID + name + ".schema.json")
		schema.Title = rs.title

		raw, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			rs.err = oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
			return
		}

		doc, err := jschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			rs.err = oops.Code("SCHEMA_GENERATE_FAILED").With("schema", name).Wrap(err)
			return
		}
		c := jschema.NewCompiler()
		if err := c.AddResource(name+".schema.json", doc); err != nil {
			rs.err = oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
			return
		}
		compiled, err := c.Compile(name + ".schema.json")
		if err != nil {
			rs.err = oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
			return
		}
		rs.raw = raw
		rs.compiled = compiled
	})
	return rs.err
}

// validateBody checks a decoded JSON document against the named schema.
// Violations come back as validation errors naming the offending field.
func validateBody(name string, doc any) error {
	rs, ok := requestSchemas[name]
	if !ok {
		return oops.Code("SCHEMA_NOT_FOUND").With("schema", name).Errorf("unknown schema %q", name)
	}
	if err := rs.load(name); err != nil {
		return err
	}
	if err := rs.compiled.Validate(doc); err != nil {
		field := schemaField(err)
		if field == "" {
			return newBadRequest("", "request body does not match the %s schema", name)
		}
		return newBadRequest(field, "%s is missing or malformed", field)
	}
	return nil
}

// schemaField picks the first field named by a schema violation.
func schemaField(err error) string {
	var ve *jschema.ValidationError
	if !errors.As(err, &ve) {
		return ""
	}
	for len(ve.Causes) > 0 {
		ve = ve.Causes[0]
	}
	if len(ve.InstanceLocation) > 0 {
		return ve.InstanceLocation[0]
	}
	switch k := ve.ErrorKind.(type) {
	case *kind.Required:
		if len(k.Missing) > 0 {
			return k.Missing[0]
		}
	case *kind.AdditionalProperties:
		if len(k.Properties) > 0 {
			return k.Properties[0]
		}
	}
	return ""
}
