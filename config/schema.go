package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the config file.
func Schema() *jsonschema.Schema {
	r := jsonschema.Reflector{
		// every key has a default
		RequiredFromJSONSchemaTags: true,
		DoNotReference:             true,
	}
	return r.Reflect(&Config{})
}

// SchemaJSON returns the indented JSON schema of the config file.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
