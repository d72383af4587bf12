package enrich

import (
	_ "embed"
	"text/template"
)

//go:embed prompts/system.md
var systemPrompt string

//go:embed prompts/user.tmpl
var userPromptRaw string

// userTemplate renders the per-record user message. Parsed once at package init.
var userTemplate = template.Must(template.New("user").Parse(userPromptRaw))
