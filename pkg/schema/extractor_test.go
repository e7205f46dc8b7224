package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

type mockFallbackObserver struct {
	mu    sync.Mutex
	types []string
}

func (m *mockFallbackObserver) SchemaFallback(credType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.types = append(m.types, credType)
}

func nodeWith(creds map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"name":        "node",
		"credentials": creds,
	}
}

func templateWith(nodes ...interface{}) map[string]interface{} {
	return map[string]interface{}{"nodes": nodes}
}

func TestExtractMissingNodes(t *testing.T) {
	_, err := Extract(map[string]interface{}{"name": "broken"})
	if !errors.Is(err, ErrInvalidTemplate) {
		t.Fatalf("Expected ErrInvalidTemplate, got %v", err)
	}
}

func TestExtractGroupsSimpleByType(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"openAiApi": map[string]interface{}{"id": "1", "name": "OpenAI account"},
		}),
		nodeWith(map[string]interface{}{
			"openAiApi": map[string]interface{}{"id": "1", "name": "OpenAI account"},
			"slackApi":  map[string]interface{}{"id": "2", "name": "Slack bot"},
		}),
	)

	schema, err := Extract(template)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(schema.Simple) != 2 {
		t.Fatalf("Expected 2 simple credentials, got %d", len(schema.Simple))
	}

	openai := schema.Simple[0]
	if openai.Type != "openAiApi" {
		t.Errorf("Expected first-seen type first, got %s", openai.Type)
	}
	if openai.Instances != 2 {
		t.Errorf("Expected 2 instances of openAiApi, got %d", openai.Instances)
	}
	if openai.DisplayName != "OpenAI" {
		t.Errorf("Expected registry display name, got %s", openai.DisplayName)
	}
	if len(openai.Fields) == 0 || openai.Fields[0].Kind != FieldKindSecret {
		t.Errorf("Expected secret field from registry, got %v", openai.Fields)
	}
	if schema.Simple[1].Instances != 1 {
		t.Errorf("Expected 1 instance of slackApi, got %d", schema.Simple[1].Instances)
	}
}

func TestExtractSpecialGroupedByTypeAndName(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"httpHeaderAuth": map[string]interface{}{"id": "1", "name": "DataforSEO API Key"},
		}),
		nodeWith(map[string]interface{}{
			"httpHeaderAuth": map[string]interface{}{"id": "2", "name": "Replicate API Token"},
		}),
		nodeWith(map[string]interface{}{
			"httpHeaderAuth": map[string]interface{}{"id": "1", "name": "DataforSEO API Key"},
		}),
	)

	schema, err := Extract(template)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(schema.Simple) != 0 {
		t.Errorf("Expected no simple credentials, got %d", len(schema.Simple))
	}
	if len(schema.Special) != 2 {
		t.Fatalf("Expected distinct names to stay separate, got %d entries", len(schema.Special))
	}

	first := schema.Special[0]
	if first.DisplayName != "DataforSEO API Key" || first.Instances != 2 {
		t.Errorf("Expected DataforSEO grouped with 2 instances, got %+v", first)
	}
	if first.Keyword != "DataforSEO" {
		t.Errorf("Expected stop words stripped, got %q", first.Keyword)
	}
	if schema.Special[1].Keyword != "Replicate" {
		t.Errorf("Expected Replicate keyword, got %q", schema.Special[1].Keyword)
	}
}

func TestExtractSpecialSameNameMerges(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"httpBasicAuth": map[string]interface{}{"name": "Internal Service"},
		}),
		nodeWith(map[string]interface{}{
			"httpBasicAuth": map[string]interface{}{"name": "Internal Service"},
		}),
	)

	schema, err := Extract(template)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(schema.Special) != 1 || schema.Special[0].Instances != 2 {
		t.Fatalf("Expected one merged entry with 2 instances, got %+v", schema.Special)
	}
}

func TestExtractBareStringReference(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"httpHeaderAuth": "Legacy Header Auth",
		}),
	)

	schema, err := Extract(template)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(schema.Special) != 1 || schema.Special[0].DisplayName != "Legacy Header Auth" {
		t.Fatalf("Expected bare string used as name, got %+v", schema.Special)
	}
}

func TestExtractNamelessSpecialUsesType(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"httpCustomAuth": map[string]interface{}{"id": "1"},
		}),
	)

	schema, err := Extract(template)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if len(schema.Special) != 1 || schema.Special[0].DisplayName != "httpCustomAuth" {
		t.Fatalf("Expected type as fallback name, got %+v", schema.Special)
	}
}

func TestExtractUnknownTypeHeuristics(t *testing.T) {
	obs := &mockFallbackObserver{}
	e := NewExtractor(zerolog.Nop(), obs)

	tests := []struct {
		credType  string
		wantField string
		wantKind  FieldKind
	}{
		{"someOAuth2Service", "clientId", FieldKindText},
		{"obscureVendorApi", "apiKey", FieldKindSecret},
		{"somethingToken", "apiKey", FieldKindSecret},
		{"mysteryThing", "value", FieldKindSecret},
	}

	for _, tt := range tests {
		schema, err := e.Extract(templateWith(
			nodeWith(map[string]interface{}{
				tt.credType: map[string]interface{}{"name": "x"},
			}),
		))
		if err != nil {
			t.Fatalf("%s: Extract failed: %v", tt.credType, err)
		}
		if len(schema.Simple) != 1 {
			t.Fatalf("%s: expected 1 entry, got %d", tt.credType, len(schema.Simple))
		}
		f := schema.Simple[0].Fields[0]
		if f.Name != tt.wantField || f.Kind != tt.wantKind {
			t.Errorf("%s: expected field %s/%s, got %s/%s", tt.credType, tt.wantField, tt.wantKind, f.Name, f.Kind)
		}
	}

	if len(obs.types) != len(tests) {
		t.Errorf("Expected %d fallback notifications, got %d", len(tests), len(obs.types))
	}
}

func TestExtractOAuthTypeCarriesNote(t *testing.T) {
	schema, err := Extract(templateWith(
		nodeWith(map[string]interface{}{
			"gmailOAuth2": map[string]interface{}{"name": "Gmail"},
		}),
	))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	entry := schema.Simple[0]
	if !entry.IsOAuth {
		t.Error("Expected gmailOAuth2 flagged as OAuth")
	}
	if entry.Note == "" {
		t.Error("Expected an OAuth handling note")
	}
}

func TestExtractDeterministic(t *testing.T) {
	raw := `{
		"nodes": [
			{"credentials": {"zType": {"name": "Z"}, "aType": {"name": "A"}, "mType": {"name": "M"}}},
			{"credentials": {"httpHeaderAuth": {"name": "Svc Key"}, "openAiApi": {"name": "OpenAI"}}}
		]
	}`

	var first *CredentialSchema
	for i := 0; i < 20; i++ {
		var template map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &template); err != nil {
			t.Fatal(err)
		}
		schema, err := Extract(template)
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if first == nil {
			first = schema
			continue
		}
		if !reflect.DeepEqual(first, schema) {
			t.Fatalf("Extraction not deterministic: run %d differs", i)
		}
	}
}

func TestExtractDoesNotMutateTemplate(t *testing.T) {
	template := templateWith(
		nodeWith(map[string]interface{}{
			"openAiApi": map[string]interface{}{"id": "1", "name": "OpenAI"},
		}),
	)
	before, _ := json.Marshal(template)

	if _, err := Extract(template); err != nil {
		t.Fatalf("Extract failed: %v", err)
	}

	after, _ := json.Marshal(template)
	if string(before) != string(after) {
		t.Error("Expected template unchanged by extraction")
	}
}

func TestDeriveKeyword(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"DataforSEO API Key", "DataforSEO"},
		{"Replicate API Token", "Replicate"},
		{"Production Auth Token", "Production Auth Token"}, // all stop words, name wins
		{"  Acme  ", "Acme"},
	}
	for _, tt := range tests {
		if got := deriveKeyword(tt.name); got != tt.want {
			t.Errorf("deriveKeyword(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
