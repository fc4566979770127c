package envelope

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/envelope.schema.json
var wireSchemaJSON string

var wireSchema = func() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("envelope.schema.json", bytes.NewReader([]byte(wireSchemaJSON))); err != nil {
		panic(fmt.Sprintf("envelope: add schema resource: %v", err))
	}
	s, err := c.Compile("envelope.schema.json")
	if err != nil {
		panic(fmt.Sprintf("envelope: compile wire schema: %v", err))
	}
	return s
}()

// ValidateWire validates untyped wire JSON against the envelope schema.
// This is the first gate for bytes arriving off a transport, before any
// decode into typed structs.
func ValidateWire(raw []byte) error {
	var doc interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("envelope: malformed wire JSON: %w", err)
	}
	if err := wireSchema.Validate(doc); err != nil {
		return fmt.Errorf("envelope: wire schema violation: %w", err)
	}
	return nil
}
