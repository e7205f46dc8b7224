package policy

// GetBuiltinPolicies returns the policies compiled into every engine.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		workflowNamingPolicy(),
		credentialHygienePolicy(),
		endpointSchemePolicy(),
	}
}

// workflowNamingPolicy enforces workflow naming conventions.
func workflowNamingPolicy() Policy {
	return Policy{
		Name:        "workflow-naming",
		Description: "Workflow names must be present and at most 128 characters",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package agentdock.policies.naming

import rego.v1

deny contains violation if {
	trim_space(input.workflow_name) == ""
	violation := {
		"message": "Deployment must set a workflow name",
		"severity": "error",
	}
}

deny contains violation if {
	count(input.workflow_name) > 128
	violation := {
		"message": sprintf("Workflow name %q exceeds 128 characters", [input.workflow_name]),
		"severity": "error",
	}
}
`,
	}
}

// credentialHygienePolicy rejects structurally broken credential inputs.
func credentialHygienePolicy() Policy {
	return Policy{
		Name:        "credential-hygiene",
		Description: "Credential inputs must carry a type and a display name; types must be unique per deployment",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"credentials"},
		Rego: `package agentdock.policies.credentials

import rego.v1

deny contains violation if {
	some c in input.credentials
	trim_space(c.type) == ""
	violation := {
		"message": sprintf("Credential %q has no backend type", [c.name]),
		"severity": "error",
	}
}

deny contains violation if {
	some c in input.credentials
	trim_space(c.name) == ""
	violation := {
		"message": sprintf("A credential of type %q has no display name", [c.type]),
		"severity": "error",
	}
}

deny contains violation if {
	some i, j
	input.credentials[i].type == input.credentials[j].type
	i < j
	violation := {
		"message": sprintf("Credential type %q appears more than once; reference rewriting is keyed by type", [input.credentials[i].type]),
		"severity": "error",
	}
}
`,
	}
}

// endpointSchemePolicy flags plaintext backend endpoints. Warning only:
// local development backends legitimately run over http.
func endpointSchemePolicy() Policy {
	return Policy{
		Name:        "endpoint-scheme",
		Description: "Backend endpoints should use https outside localhost",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"transport"},
		Rego: `package agentdock.policies.endpoint

import rego.v1

deny contains violation if {
	startswith(input.base_url, "http://")
	not contains(input.base_url, "localhost")
	not contains(input.base_url, "127.0.0.1")
	violation := {
		"message": sprintf("Backend endpoint %q is not using https", [input.base_url]),
		"severity": "warning",
	}
}
`,
	}
}
