package record

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestSchemaJSON(t *testing.T) {
	data, err := SchemaJSON()
	if err != nil {
		t.Fatalf("SchemaJSON() error = %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("schema is not valid JSON: %v", err)
	}
	if doc["title"] != "Council Session Record" {
		t.Errorf("title = %v", doc["title"])
	}
	for _, field := range []string{`"conversation_id"`, `"responses"`, `"reviews"`, `"ranking"`, `"synthesis"`} {
		if !strings.Contains(string(data), field) {
			t.Errorf("schema missing %s", field)
		}
	}
}
