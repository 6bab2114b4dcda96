package refine

import (
	"fmt"
	"strings"
)

// Improvement records one change a directive asks the producer to make,
// kept for traceability.
type Improvement struct {
	Category string `json:"category"`
	Issue    string `json:"issue"`
	Change   string `json:"change"`
}

// Directive is the structured refinement guidance fed back to a producer on
// RETRY: prioritized issues plus the canonical fixes for each failing
// category.
type Directive struct {
	Text         string        `json:"text"`
	Priority     Severity      `json:"priority"`
	Improvements []Improvement `json:"improvements,omitempty"`
}

// DirectiveTable maps an issue category to its canonical fix directive.
// The content is domain prompt text owned by each instantiation; the loop
// only applies the mapping.
type DirectiveTable map[string]string

// Directive fixes that apply when no instantiation-specific table is
// configured. Keys match the generic critique categories.
const simplifyDirective = "Reduce overall complexity: fewer simultaneous elements, simpler composition, one clear focal point."

// DefaultDirectiveTable returns the generic category fixes.
func DefaultDirectiveTable() DirectiveTable {
	return DirectiveTable{
		"visual":    "Make every element visually concrete: name colors, shapes, lighting, and spatial layout explicitly.",
		"narrative": "Tighten the narrative arc: a clear beginning, one escalation, and a definite resolution.",
		"pacing":    "Rebalance pacing: shorten slow sections and give key moments room to land.",
	}
}

// BuildDirective deterministically converts a verdict into refinement
// guidance using the category table. It always returns a non-empty
// directive: this is the guaranteed fallback path when enhanced synthesis is
// unavailable.
func BuildDirective(verdict *Verdict, table DirectiveTable) *Directive {
	directive := &Directive{Priority: SeverityMinor}

	var sb strings.Builder
	sb.WriteString("The previous attempt failed quality review.\n")

	issues := verdict.IssuesBySeverity()
	if len(issues) > 0 {
		sb.WriteString("\nIssues found (most severe first):\n")
		for _, issue := range issues {
			sb.WriteString(fmt.Sprintf("- [%s] %s: %s\n", issue.Severity, issue.Category, issue.Message))
			if issue.Severity.rank() < directive.Priority.rank() {
				directive.Priority = issue.Severity
			}
		}
	}
	for _, weakness := range verdict.Weaknesses {
		sb.WriteString(fmt.Sprintf("- weakness: %s\n", weakness))
	}

	categories := verdict.Categories()
	if len(categories) > 0 {
		sb.WriteString("\nApply these fixes:\n")
		for _, category := range categories {
			fix, ok := table[category]
			if !ok {
				fix = fmt.Sprintf("Address all reported %s issues directly.", category)
			}
			sb.WriteString(fmt.Sprintf("- %s\n", fix))
			directive.Improvements = append(directive.Improvements, Improvement{
				Category: category,
				Issue:    firstIssueMessage(issues, category),
				Change:   fix,
			})
		}
		// Compounding-failure rule: several categories failing at once means
		// the attempt is overreaching.
		if len(categories) > 1 {
			sb.WriteString(fmt.Sprintf("- %s\n", simplifyDirective))
			directive.Improvements = append(directive.Improvements, Improvement{
				Category: "global",
				Issue:    fmt.Sprintf("%d categories failing simultaneously", len(categories)),
				Change:   simplifyDirective,
			})
		}
	}

	if len(verdict.Suggestions) > 0 {
		sb.WriteString("\nReviewer suggestions:\n")
		for _, suggestion := range verdict.Suggestions {
			sb.WriteString(fmt.Sprintf("- %s\n", suggestion))
		}
	}
	if len(verdict.Strengths) > 0 {
		sb.WriteString("\nPreserve these strengths:\n")
		for _, strength := range verdict.Strengths {
			sb.WriteString(fmt.Sprintf("- %s\n", strength))
		}
	}

	if len(issues) == 0 && len(verdict.Weaknesses) == 0 && len(verdict.Suggestions) == 0 {
		sb.WriteString("\nNo specific defects were reported; raise overall quality across every dimension.\n")
	}

	directive.Text = sb.String()
	return directive
}

func firstIssueMessage(issues []Issue, category string) string {
	for _, issue := range issues {
		if issue.Category == category {
			return issue.Message
		}
	}
	return ""
}
