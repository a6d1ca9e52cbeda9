// Package report builds the markdown analysis report returned by the
// development backend. The draft section comes from an LLM when one is
// configured; everything else is derived from the SERP summary.
package report

import (
	"context"
	"fmt"
	"strings"

	"github.com/lisanmuaddib/seo-analyzer-go/pkg/analysis"
	"github.com/lisanmuaddib/seo-analyzer-go/pkg/llm"
	"github.com/sirupsen/logrus"
)

const (
	draftTemperature  = 0.7
	draftSystemPrompt = "You are an SEO content writer. Answer with markdown only."
)

// DraftMaxTokens bounds the generated draft.
const DraftMaxTokens = 1500

// Report is a generated analysis report.
type Report struct {
	Markdown string
	// TokenUsage is the provider reported usage, estimated when not reported
	TokenUsage int
	// DraftGenerated is false when no LLM was available or it failed
	DraftGenerated bool
}

// Generator builds reports. The zero LLM is allowed.
type Generator struct {
	llm    llm.LLM
	logger *logrus.Logger
}

func NewGenerator(l llm.LLM, logger *logrus.Logger) *Generator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Generator{llm: l, logger: logger}
}

// Generate renders the report for req. An LLM failure degrades to a report
// without draft; only a context error is returned.
func (g *Generator) Generate(ctx context.Context, req analysis.Request, serp analysis.SerpSummary) (*Report, error) {
	rep := &Report{}

	var draft string
	if req.Options.GenerateDraft && g.llm != nil {
		prompt, err := formatDraftPrompt(req, serp)
		if err != nil {
			return nil, err
		}
		completion, err := g.llm.Generate(ctx, prompt,
			llm.WithSystem(draftSystemPrompt),
			llm.WithTemperature(draftTemperature),
			llm.WithMaxTokens(DraftMaxTokens),
		)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			g.logger.WithError(err).WithField("keyword", req.Keyword).Warn("Draft generation failed, continuing without draft")
		default:
			draft = completion.Text
			rep.DraftGenerated = true
			rep.TokenUsage = completion.TotalTokens()
			if rep.TokenUsage == 0 {
				rep.TokenUsage = estimateTokens(draftSystemPrompt) + estimateTokens(prompt) + estimateTokens(draft)
			}
		}
	}

	rep.Markdown = render(req, serp, strings.TrimSpace(draft))
	return rep, nil
}

func render(req analysis.Request, serp analysis.SerpSummary, draft string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# SEO Analysis: %s\n\n", req.Keyword)
	fmt.Fprintf(&b, "**Target audience:** %s\n\n", req.Audience)

	b.WriteString("## SERP Overview\n\n")
	fmt.Fprintf(&b, "- Results analysed: %d\n", serp.TotalResults)
	fmt.Fprintf(&b, "- Average word count: %.0f\n", serp.AvgWordCount)
	if serp.TopCompetitor != "" {
		fmt.Fprintf(&b, "- Top competitor: %s\n", serp.TopCompetitor)
	}
	b.WriteString("\n")

	if len(serp.CommonThemes) > 0 {
		b.WriteString("## Common Themes\n\n")
		for _, theme := range serp.CommonThemes {
			fmt.Fprintf(&b, "- %s\n", theme)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	fmt.Fprintf(&b, "1. Target about %d words to outdo the current average.\n", targetWordCount(serp))
	fmt.Fprintf(&b, "2. Use \"%s\" in the title, the first paragraph and at least one H2.\n", req.Keyword)
	fmt.Fprintf(&b, "3. Write for %s: answer their questions before going deep.\n\n", req.Audience)

	if req.Options.IncludeTable && len(serp.CommonThemes) > 0 {
		b.WriteString("## Theme Coverage\n\n")
		b.WriteString("| Theme | Covered by competitors |\n|---|---|\n")
		for _, theme := range serp.CommonThemes {
			fmt.Fprintf(&b, "| %s | yes |\n", theme)
		}
		b.WriteString("\n")
	}

	if req.Options.IncludeFAQ {
		b.WriteString("## Suggested FAQ\n\n")
		fmt.Fprintf(&b, "- What is %s?\n", req.Keyword)
		fmt.Fprintf(&b, "- Why does %s matter for %s?\n", req.Keyword, req.Audience)
		fmt.Fprintf(&b, "- How do I get started with %s?\n\n", req.Keyword)
	}

	if draft != "" {
		b.WriteString("## Draft\n\n")
		b.WriteString(draft)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// estimateTokens uses the usual four characters per token rule.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}
