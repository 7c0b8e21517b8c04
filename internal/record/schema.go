package record

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

// SchemaID identifies the published record schema.
const SchemaID = "https://github.com/Iron-Ham/council/schemas/session-record.json"

// Schema returns the JSON schema describing a persisted SessionRecord.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: true,
		ExpandedStruct:            true,
		DoNotReference:            false,
	}
	s := r.Reflect(&SessionRecord{})
	s.ID = jsonschema.ID(SchemaID)
	s.Title = "Council Session Record"
	s.Description = "One complete council deliberation: responses, peer reviews, aggregate ranking, synthesis and merge outcome."
	return s
}

// SchemaJSON renders Schema as indented JSON.
func SchemaJSON() ([]byte, error) {
	return json.MarshalIndent(Schema(), "", "  ")
}
