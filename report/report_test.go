package report

import (
	"strings"
	"testing"
	"time"
)

var generated = time.Date(2026, 9, 14, 10, 30, 0, 0, time.UTC)

func TestClassifySeverity(t *testing.T) {
	tests := []struct {
		score float64
		want  Severity
	}{
		{0, SeverityLow},
		{9.99, SeverityLow},
		{10, SeverityMedium},
		{24.99, SeverityMedium},
		{25, SeverityHigh},
		{100, SeverityHigh},
	}
	for _, tt := range tests {
		if got := ClassifySeverity(tt.score); got != tt.want {
			t.Errorf("ClassifySeverity(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestRender_Fields(t *testing.T) {
	out := Render(Input{
		Provider:    "RapidAPI",
		Score:       27.5,
		WordCount:   50,
		GeneratedAt: generated,
		Sources: []Source{
			{URL: "https://a.example", Similarity: 20, Title: "Paper A"},
			{URL: "https://b.example", Similarity: 7.5},
		},
	})

	for _, want := range []string{
		"Provider: RapidAPI\n",
		"Generated: 2026-09-14 10:30:00 UTC",
		"Word Count: 50 words",
		"Overall Similarity Score: 27.50%",
		"Severity Level: High",
		"1. Paper A\n   URL: https://a.example\n   Similarity: 20.00%",
		"2. Unknown Source\n   URL: https://b.example",
		"requires immediate review",
		"ACTION REQUIRED:",
		Disclaimer,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "DEMO MODE") {
		t.Error("non-fallback report mentions demo mode")
	}
}

func TestRender_LowNoSourcesFallback(t *testing.T) {
	out := Render(Input{Provider: "Mock Checker", Score: 4, WordCount: 12, Fallback: true, GeneratedAt: generated})

	for _, want := range []string{
		"Provider: Mock Checker (DEMO MODE)",
		"Severity Level: Low",
		"No significant matches found.",
		"No action required.",
		"DEMO MODE ACTIVE",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q", want)
		}
	}
	if strings.Contains(out, "ACTION REQUIRED") {
		t.Error("low severity report lists actions")
	}
}

func TestRender_MediumBoundary(t *testing.T) {
	out := Render(Input{Provider: "p", Score: 10, GeneratedAt: generated})
	if !strings.Contains(out, "Severity Level: Medium") || !strings.Contains(out, "Manual review recommended") {
		t.Fatalf("score 10 not rendered as Medium:\n%s", out)
	}
}

func TestRender_ExtractionNote(t *testing.T) {
	out := Render(Input{Provider: "p", GeneratedAt: generated, ExtractionNote: "no text could be extracted (docx: corrupt archive)"})
	if !strings.Contains(out, "Note: no text could be extracted (docx: corrupt archive)") {
		t.Fatalf("note missing:\n%s", out)
	}
	if !strings.Contains(out, "Word Count: 0 words") {
		t.Fatal("word count missing")
	}
}

func TestRender_Deterministic(t *testing.T) {
	in := Input{Provider: "p", Score: 12.5, WordCount: 3, GeneratedAt: generated, Sources: []Source{{URL: "u", Similarity: 1}}}
	if Render(in) != Render(in) {
		t.Fatal("Render is not deterministic")
	}
}

func TestRenderPending(t *testing.T) {
	out := RenderPending("Copyleaks", "scan-42", generated)
	for _, want := range []string{"Provider: Copyleaks", "Scan ID: scan-42", "Status: PENDING"} {
		if !strings.Contains(out, want) {
			t.Errorf("pending report missing %q", want)
		}
	}
	if strings.Contains(out, "Similarity Score") {
		t.Error("pending report shows a score")
	}
}
