// Package report renders the plain-text originality report stored next to
// each submission.
package report

import (
	"fmt"
	"strings"
	"time"
)

// Severity buckets a similarity score.
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

// ClassifySeverity maps score to Low (<10), Medium ([10,25)) or High (>=25).
func ClassifySeverity(score float64) Severity {
	switch {
	case score >= 25:
		return SeverityHigh
	case score >= 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Recommendation is the reviewer guidance for a severity.
func (s Severity) Recommendation() string {
	switch s {
	case SeverityHigh:
		return "HIGH SIMILARITY DETECTED! This document requires immediate review."
	case SeverityMedium:
		return "Some similarities detected. Manual review recommended."
	default:
		return "The document appears to be original. No action required."
	}
}

// Source is a matched document listed in the report.
type Source struct {
	URL        string
	Similarity float64
	Title      string
}

// Input is everything a report is rendered from.
type Input struct {
	Provider    string
	Score       float64
	WordCount   int
	Sources     []Source
	Fallback    bool
	GeneratedAt time.Time
	// ExtractionNote is printed under the score when extraction failed or
	// came out thin.
	ExtractionNote string
}

// TimeLayout formats the generation timestamp.
const TimeLayout = "2006-01-02 15:04:05 MST"

const (
	rule    = "================================================================="
	subrule = "-----------------------------------------------------------------"
)

func header(b *strings.Builder, title string) {
	b.WriteString(rule + "\n")
	b.WriteString(center(title) + "\n")
	b.WriteString(rule + "\n\n")
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n" + subrule + "\n")
	b.WriteString(title + "\n")
	b.WriteString(subrule + "\n")
}

func center(s string) string {
	pad := (len(rule) - len(s)) / 2
	if pad <= 0 {
		return s
	}
	return strings.Repeat(" ", pad) + s
}

// Render produces the full analysis report. It is a pure function of in.
func Render(in Input) string {
	severity := ClassifySeverity(in.Score)
	var b strings.Builder

	header(&b, "ORIGINALITY ANALYSIS REPORT")

	provider := in.Provider
	if in.Fallback {
		provider += " (DEMO MODE)"
	}
	fmt.Fprintf(&b, "Provider: %s\n", provider)
	fmt.Fprintf(&b, "Generated: %s\n", in.GeneratedAt.Format(TimeLayout))
	fmt.Fprintf(&b, "Word Count: %d words\n", in.WordCount)
	fmt.Fprintf(&b, "Overall Similarity Score: %.2f%%\n\n", in.Score)
	fmt.Fprintf(&b, "Severity Level: %s\n", severity)
	if in.ExtractionNote != "" {
		fmt.Fprintf(&b, "\nNote: %s\n", in.ExtractionNote)
	}

	section(&b, "SUMMARY")
	fmt.Fprintf(&b, "The document was analyzed using %s.\n", in.Provider)
	b.WriteString("\nSimilarity Score Breakdown:\n")
	b.WriteString("- 0-10%:   Acceptable (likely original work)\n")
	b.WriteString("- 10-25%:  Warning (requires review)\n")
	b.WriteString("- 25-100%: High risk (likely copied)\n")
	fmt.Fprintf(&b, "\nCurrent Score: %.2f%% - %s Risk\n", in.Score, severity)

	section(&b, "MATCHING SOURCES")
	if len(in.Sources) == 0 {
		b.WriteString("No significant matches found.\n")
		b.WriteString("The content appears to be original.\n")
	}
	for i, s := range in.Sources {
		title := s.Title
		if title == "" {
			title = "Unknown Source"
		}
		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		fmt.Fprintf(&b, "   URL: %s\n", s.URL)
		fmt.Fprintf(&b, "   Similarity: %.2f%%\n", s.Similarity)
	}

	section(&b, "RECOMMENDATION")
	b.WriteString(severity.Recommendation() + "\n")
	if severity != SeverityLow {
		b.WriteString("\nACTION REQUIRED:\n")
		b.WriteString("- Review highlighted sections manually\n")
		b.WriteString("- Check citations and references\n")
		b.WriteString("- Verify the student's original work\n")
		b.WriteString("- Consider a discussion with the student\n")
	}

	section(&b, "DISCLAIMER")
	b.WriteString(Disclaimer + "\n")

	if in.Fallback {
		b.WriteString("\nDEMO MODE ACTIVE\n")
		b.WriteString("This report was generated by the local demo scorer, not by an\n")
		b.WriteString("external originality service. Configure a provider and its API\n")
		b.WriteString("key to enable real checks.\n")
	}

	b.WriteString("\n" + rule + "\n")
	b.WriteString(center("END OF REPORT") + "\n")
	b.WriteString(rule)
	return b.String()
}

// Disclaimer closes every full report.
const Disclaimer = "This is an automated analysis. Human review is required\n" +
	"for a final determination. The score is based on text similarity\n" +
	"and may include properly cited sources."

// RenderPending produces the placeholder report for a scan whose verdict
// will arrive asynchronously.
func RenderPending(provider, scanID string, generatedAt time.Time) string {
	var b strings.Builder
	header(&b, "ORIGINALITY SCAN SUBMITTED")
	fmt.Fprintf(&b, "Provider: %s\n", provider)
	fmt.Fprintf(&b, "Scan ID: %s\n", scanID)
	fmt.Fprintf(&b, "Generated: %s\n", generatedAt.Format(TimeLayout))
	b.WriteString("Status: PENDING\n\n")
	b.WriteString("The scan has been submitted and is being processed.\n")
	b.WriteString("The detailed report will replace this placeholder once the\n")
	b.WriteString("provider reports its result.\n\n")
	b.WriteString(rule)
	return b.String()
}
