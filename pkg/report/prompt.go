package report

import (
	"fmt"
	"strings"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	langchainprompts "github.com/tmc/langchaingo/prompts"
)

// draftPrompt asks for the article draft. Optional sections are switched
// on by the request options.
var draftPrompt = langchainprompts.NewPromptTemplate(
	`You are an SEO content strategist writing for {{.audience}}.

Write a markdown article draft targeting the keyword "{{.keyword}}".

What currently ranks:
{{.serp}}

Requirements:
1. Use H2 and H3 headings that include the keyword naturally
2. Aim for roughly {{.wordCount}} words
3. Address the audience directly
{{- if .faq}}
4. End with a "Frequently Asked Questions" section of 3 to 5 questions
{{- end}}
{{- if .table}}
5. Include one comparison table in markdown
{{- end}}

Draft:`,
	[]string{"audience", "keyword", "serp", "wordCount", "faq", "table"},
)

func formatDraftPrompt(req analysis.Request, serp analysis.SerpSummary) (string, error) {
	prompt, err := draftPrompt.Format(map[string]any{
		"audience":  req.Audience,
		"keyword":   req.Keyword,
		"serp":      formatSerp(serp),
		"wordCount": targetWordCount(serp),
		"faq":       req.Options.IncludeFAQ,
		"table":     req.Options.IncludeTable,
	})
	if err != nil {
		return "", fmt.Errorf("error formatting draft prompt: %w", err)
	}
	return prompt, nil
}

func formatSerp(serp analysis.SerpSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %d results analysed, %.0f words on average\n", serp.TotalResults, serp.AvgWordCount)
	if serp.TopCompetitor != "" {
		fmt.Fprintf(&b, "- top competitor: %s\n", serp.TopCompetitor)
	}
	for _, theme := range serp.CommonThemes {
		fmt.Fprintf(&b, "- common theme: %s\n", theme)
	}
	return b.String()
}

// targetWordCount beats the competitor average by a tenth, rounded to 50.
func targetWordCount(serp analysis.SerpSummary) int {
	if serp.AvgWordCount <= 0 {
		return 1200
	}
	target := int(serp.AvgWordCount*1.1+25) / 50 * 50
	return max(target, 300)
}
