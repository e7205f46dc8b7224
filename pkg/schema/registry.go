package schema

// FieldKind is the input kind an operator-supplied field expects.
type FieldKind string

const (
	// FieldKindText is a plain text input.
	FieldKindText FieldKind = "text"

	// FieldKindSecret is a masked secret input.
	FieldKindSecret FieldKind = "secret"
)

// CredentialField is one named input the operator must supply for a
// credential type.
type CredentialField struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Required bool      `json:"required"`
	Default  string    `json:"default,omitempty"`
}

// TypeSpec describes a known backend credential type: its display name,
// exact field list, and whether it needs an interactive OAuth flow.
type TypeSpec struct {
	DisplayName string
	Fields      []CredentialField
	IsOAuth     bool
	Note        string
}

// SpecialAuthTypes are the generic-auth backend types whose usages are
// distinguishable only by the human-assigned name on the reference. The
// list is fixed; extending it is a configuration decision, not something
// the extractor infers.
var SpecialAuthTypes = map[string]bool{
	"httpHeaderAuth": true,
	"httpBasicAuth":  true,
	"httpCustomAuth": true,
}

// keywordStopWords are stripped (case-insensitively) from a special
// credential's display name when deriving its keyword.
var keywordStopWords = map[string]bool{
	"api":         true,
	"key":         true,
	"auth":        true,
	"token":       true,
	"production":  true,
	"prod":        true,
	"dev":         true,
	"development": true,
	"test":        true,
}

// typeRegistry maps known backend credential types to their field
// schemas. Append-only; unknown types go through the heuristic fallback
// in the extractor, which is logged so guesses stay visible.
var typeRegistry = map[string]TypeSpec{
	"httpHeaderAuth": {
		DisplayName: "Header Auth",
		Fields: []CredentialField{
			{Name: "name", Label: "Header Name", Kind: FieldKindText, Required: true, Default: "Authorization"},
			{Name: "value", Label: "Header Value", Kind: FieldKindSecret, Required: true},
		},
	},
	"httpBasicAuth": {
		DisplayName: "Basic Auth",
		Fields: []CredentialField{
			{Name: "user", Label: "Username", Kind: FieldKindText, Required: true},
			{Name: "password", Label: "Password", Kind: FieldKindSecret, Required: true},
		},
	},
	"httpCustomAuth": {
		DisplayName: "Custom Auth",
		Fields: []CredentialField{
			{Name: "json", Label: "Auth JSON", Kind: FieldKindSecret, Required: true},
		},
	},
	"openAiApi": {
		DisplayName: "OpenAI",
		Fields: []CredentialField{
			{Name: "apiKey", Label: "API Key", Kind: FieldKindSecret, Required: true},
		},
	},
	"anthropicApi": {
		DisplayName: "Anthropic",
		Fields: []CredentialField{
			{Name: "apiKey", Label: "API Key", Kind: FieldKindSecret, Required: true},
		},
	},
	"slackApi": {
		DisplayName: "Slack",
		Fields: []CredentialField{
			{Name: "accessToken", Label: "Access Token", Kind: FieldKindSecret, Required: true},
		},
	},
	"telegramApi": {
		DisplayName: "Telegram",
		Fields: []CredentialField{
			{Name: "accessToken", Label: "Bot Token", Kind: FieldKindSecret, Required: true},
		},
	},
	"notionApi": {
		DisplayName: "Notion",
		Fields: []CredentialField{
			{Name: "apiKey", Label: "Internal Integration Secret", Kind: FieldKindSecret, Required: true},
		},
	},
	"airtableTokenApi": {
		DisplayName: "Airtable",
		Fields: []CredentialField{
			{Name: "accessToken", Label: "Personal Access Token", Kind: FieldKindSecret, Required: true},
		},
	},
	"googleApi": {
		DisplayName: "Google Service Account",
		Fields: []CredentialField{
			{Name: "email", Label: "Service Account Email", Kind: FieldKindText, Required: true},
			{Name: "privateKey", Label: "Private Key", Kind: FieldKindSecret, Required: true},
		},
	},
	"postgres": {
		DisplayName: "Postgres",
		Fields: []CredentialField{
			{Name: "host", Label: "Host", Kind: FieldKindText, Required: true},
			{Name: "database", Label: "Database", Kind: FieldKindText, Required: true},
			{Name: "user", Label: "User", Kind: FieldKindText, Required: true},
			{Name: "password", Label: "Password", Kind: FieldKindSecret, Required: true},
			{Name: "port", Label: "Port", Kind: FieldKindText, Required: false, Default: "5432"},
		},
	},
	"smtp": {
		DisplayName: "SMTP",
		Fields: []CredentialField{
			{Name: "host", Label: "Host", Kind: FieldKindText, Required: true},
			{Name: "port", Label: "Port", Kind: FieldKindText, Required: false, Default: "465"},
			{Name: "user", Label: "User", Kind: FieldKindText, Required: true},
			{Name: "password", Label: "Password", Kind: FieldKindSecret, Required: true},
		},
	},
	"githubApi": {
		DisplayName: "GitHub",
		Fields: []CredentialField{
			{Name: "accessToken", Label: "Access Token", Kind: FieldKindSecret, Required: true},
			{Name: "server", Label: "GitHub Server", Kind: FieldKindText, Required: false, Default: "https://api.github.com"},
		},
	},
	"supabaseApi": {
		DisplayName: "Supabase",
		Fields: []CredentialField{
			{Name: "host", Label: "Project URL", Kind: FieldKindText, Required: true},
			{Name: "serviceRole", Label: "Service Role Key", Kind: FieldKindSecret, Required: true},
		},
	},
	"googleSheetsOAuth2Api": {
		DisplayName: "Google Sheets (OAuth2)",
		IsOAuth:     true,
		Note:        "Requires completing the Google OAuth consent flow after deployment.",
		Fields: []CredentialField{
			{Name: "clientId", Label: "Client ID", Kind: FieldKindText, Required: true},
			{Name: "clientSecret", Label: "Client Secret", Kind: FieldKindSecret, Required: true},
		},
	},
	"gmailOAuth2": {
		DisplayName: "Gmail (OAuth2)",
		IsOAuth:     true,
		Note:        "Requires completing the Google OAuth consent flow after deployment.",
		Fields: []CredentialField{
			{Name: "clientId", Label: "Client ID", Kind: FieldKindText, Required: true},
			{Name: "clientSecret", Label: "Client Secret", Kind: FieldKindSecret, Required: true},
		},
	},
	"googleDriveOAuth2Api": {
		DisplayName: "Google Drive (OAuth2)",
		IsOAuth:     true,
		Note:        "Requires completing the Google OAuth consent flow after deployment.",
		Fields: []CredentialField{
			{Name: "clientId", Label: "Client ID", Kind: FieldKindText, Required: true},
			{Name: "clientSecret", Label: "Client Secret", Kind: FieldKindSecret, Required: true},
		},
	},
	"slackOAuth2Api": {
		DisplayName: "Slack (OAuth2)",
		IsOAuth:     true,
		Note:        "Requires completing the Slack OAuth consent flow after deployment.",
		Fields: []CredentialField{
			{Name: "clientId", Label: "Client ID", Kind: FieldKindText, Required: true},
			{Name: "clientSecret", Label: "Client Secret", Kind: FieldKindSecret, Required: true},
		},
	},
}

// LookupType returns the registry entry for a backend credential type.
func LookupType(credType string) (TypeSpec, bool) {
	spec, ok := typeRegistry[credType]
	return spec, ok
}
