package strategy

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/trade-manager/trade-engine/pkg/errors"
)

// GenerateSchema reflects the JSON schema for a rule configuration struct.
// UIs and config validators consume these schemas instead of hard-coding
// each rule's parameters.
func GenerateSchema(config any) (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.Reflect(config)
	if schema == nil {
		return nil, errors.New(errors.ErrCodeRuleConfigError, "failed to reflect config schema")
	}

	return schema, nil
}

// GenerateSchemaJSON returns the indented JSON form of a rule config
// schema.
func GenerateSchemaJSON(config any) (string, error) {
	schema, err := GenerateSchema(config)
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeRuleConfigError, "failed to marshal config schema", err)
	}

	return string(schemaBytes), nil
}
