// Package schema extracts a credential schema from a workflow template:
// which secrets the template needs, how to group them, and which input
// fields an operator must fill in for each. Extraction is a pure function
// of the template JSON; the input is never mutated and identical templates
// always yield identical schemas.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalidTemplate is returned when the template carries no nodes array.
var ErrInvalidTemplate = errors.New("invalid template: missing nodes array")

// SimpleCredential is a required secret uniquely identified by its
// backend type.
type SimpleCredential struct {
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name"`
	Instances   int               `json:"instances"`
	Fields      []CredentialField `json:"fields"`
	IsOAuth     bool              `json:"is_oauth,omitempty"`
	Note        string            `json:"note,omitempty"`
}

// SpecialCredential is a secret whose backend type is generic (header,
// basic, or custom auth) and that is disambiguated by its human-assigned
// name. Keyword is a best-effort label an operator can match secrets by.
type SpecialCredential struct {
	Type        string            `json:"type"`
	DisplayName string            `json:"display_name"`
	Keyword     string            `json:"keyword"`
	Instances   int               `json:"instances"`
	Fields      []CredentialField `json:"fields"`
}

// CredentialSchema is the full set of secrets a template requires.
type CredentialSchema struct {
	Simple  []SimpleCredential  `json:"simple"`
	Special []SpecialCredential `json:"special"`
}

// FallbackObserver is notified whenever field derivation falls back to a
// heuristic because a credential type is not in the registry. Implemented
// by pkg/telemetry.
type FallbackObserver interface {
	SchemaFallback(credType string)
}

// Extractor derives credential schemas from templates. The zero value is
// usable; the logger and observer only make the unknown-type fallback
// path visible.
type Extractor struct {
	logger   zerolog.Logger
	observer FallbackObserver
}

// NewExtractor creates an extractor that logs fallback decisions.
func NewExtractor(logger zerolog.Logger, observer FallbackObserver) *Extractor {
	return &Extractor{logger: logger, observer: observer}
}

// Extract runs the default extractor with a no-op logger.
func Extract(template map[string]interface{}) (*CredentialSchema, error) {
	return (&Extractor{logger: zerolog.Nop()}).Extract(template)
}

// Extract analyzes a template and returns its credential schema.
func (e *Extractor) Extract(template map[string]interface{}) (*CredentialSchema, error) {
	nodes, ok := template["nodes"].([]interface{})
	if !ok {
		return nil, ErrInvalidTemplate
	}

	simpleByKey := make(map[string]*SimpleCredential)
	specialByKey := make(map[string]*SpecialCredential)
	var simpleOrder, specialOrder []string

	for _, n := range nodes {
		node, ok := n.(map[string]interface{})
		if !ok {
			continue
		}
		creds, ok := node["credentials"].(map[string]interface{})
		if !ok {
			continue
		}

		// Per-node iteration in sorted key order keeps the schema
		// independent of map ordering.
		types := make([]string, 0, len(creds))
		for t := range creds {
			types = append(types, t)
		}
		sort.Strings(types)

		for _, credType := range types {
			name := refName(creds[credType])

			if SpecialAuthTypes[credType] {
				if name == "" {
					name = credType
				}
				key := credType + ":" + name
				entry, seen := specialByKey[key]
				if !seen {
					entry = &SpecialCredential{
						Type:        credType,
						DisplayName: name,
						Keyword:     deriveKeyword(name),
						Fields:      e.fieldsFor(credType),
					}
					specialByKey[key] = entry
					specialOrder = append(specialOrder, key)
				}
				entry.Instances++
				continue
			}

			entry, seen := simpleByKey[credType]
			if !seen {
				spec, known := LookupType(credType)
				entry = &SimpleCredential{
					Type:        credType,
					DisplayName: displayNameFor(credType, spec, known),
					Fields:      e.fieldsFor(credType),
					IsOAuth:     isOAuthType(credType, spec, known),
				}
				if entry.IsOAuth {
					entry.Note = oauthNote(credType, spec, known)
				}
				simpleByKey[credType] = entry
				simpleOrder = append(simpleOrder, credType)
			}
			entry.Instances++
		}
	}

	out := &CredentialSchema{
		Simple:  make([]SimpleCredential, 0, len(simpleOrder)),
		Special: make([]SpecialCredential, 0, len(specialOrder)),
	}
	for _, key := range simpleOrder {
		out.Simple = append(out.Simple, *simpleByKey[key])
	}
	for _, key := range specialOrder {
		out.Special = append(out.Special, *specialByKey[key])
	}
	return out, nil
}

// refName extracts the human-assigned display name from a node credential
// reference. References are either objects with a name field or bare
// strings.
func refName(ref interface{}) string {
	switch v := ref.(type) {
	case map[string]interface{}:
		if name, ok := v["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	case string:
		return strings.TrimSpace(v)
	}
	return ""
}

// fieldsFor returns the field list for a credential type, consulting the
// static registry first and falling back to heuristics for unknown types.
// Fallbacks are guesses, so each one is logged and counted.
func (e *Extractor) fieldsFor(credType string) []CredentialField {
	if spec, ok := LookupType(credType); ok {
		fields := make([]CredentialField, len(spec.Fields))
		copy(fields, spec.Fields)
		return fields
	}

	if e.observer != nil {
		e.observer.SchemaFallback(credType)
	}

	lower := strings.ToLower(credType)
	switch {
	case strings.Contains(lower, "oauth"):
		e.logger.Warn().Str("credential_type", credType).
			Msg("Unknown credential type, guessing OAuth client pair")
		return []CredentialField{
			{Name: "clientId", Label: "Client ID", Kind: FieldKindText, Required: true},
			{Name: "clientSecret", Label: "Client Secret", Kind: FieldKindSecret, Required: true},
		}
	case strings.Contains(lower, "api"), strings.Contains(lower, "token"):
		e.logger.Warn().Str("credential_type", credType).
			Msg("Unknown credential type, guessing single API key field")
		return []CredentialField{
			{Name: "apiKey", Label: "API Key", Kind: FieldKindSecret, Required: true},
		}
	default:
		e.logger.Warn().Str("credential_type", credType).
			Msg("Unknown credential type, guessing single secret field")
		return []CredentialField{
			{Name: "value", Label: "Secret", Kind: FieldKindSecret, Required: true},
		}
	}
}

func displayNameFor(credType string, spec TypeSpec, known bool) string {
	if known && spec.DisplayName != "" {
		return spec.DisplayName
	}
	return credType
}

func isOAuthType(credType string, spec TypeSpec, known bool) bool {
	if known {
		return spec.IsOAuth
	}
	return strings.Contains(strings.ToLower(credType), "oauth")
}

func oauthNote(credType string, spec TypeSpec, known bool) string {
	if known && spec.Note != "" {
		return spec.Note
	}
	return fmt.Sprintf("Credential type %q requires an interactive OAuth flow; complete it manually after deployment.", credType)
}

// deriveKeyword strips the stop-word list from a display name and trims
// the remainder, yielding a label the operator can match the right secret
// by. When everything is a stop word the original name wins over an empty
// keyword.
func deriveKeyword(name string) string {
	words := strings.Fields(name)
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if keywordStopWords[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, w)
	}
	keyword := strings.TrimSpace(strings.Join(kept, " "))
	if keyword == "" {
		return strings.TrimSpace(name)
	}
	return keyword
}
