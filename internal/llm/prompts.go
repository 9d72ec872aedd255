package llm

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
)

// Embedded prompt templates and system messages.

//go:embed prompts/sentiment.txt
var sentimentPrompt string

//go:embed prompts/keywords.txt
var keywordsPrompt string

//go:embed prompts/insights.txt
var insightsPrompt string

//go:embed prompts/system_analyst.txt
var analystSystemMessage string

//go:embed prompts/system_insights.txt
var insightsSystemMessage string

type promptData struct {
	Text   string
	Rating int
}

func renderPrompt(tmpl string, data promptData) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse prompt template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return b.String(), nil
}
