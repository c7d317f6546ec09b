package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"example.com/alsepgate/internal/rules"
	"example.com/alsepgate/internal/summary"
)

const testHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func sampleReport() rules.AcceptanceReport {
	var rep rules.AcceptanceReport
	rep.Summary.File = "pse.a12.1.2"
	rep.Summary.Format = "pse"
	rep.Summary.Records = 3
	rep.Summary.Frames = 270
	rep.Summary.Flagged = 2
	rep.Summary.Total = 1
	rep.Summary.Errors = 1
	rep.GateMatrix = []rules.GateResult{
		{RuleId: "AT-FRM-001", Name: "Frame sync", Scope: "frame", Severity: rules.ERROR, Status: "FAIL", Count: 2},
		{RuleId: "AT-FILE-001", Name: "Tape not empty", Scope: "file", Severity: rules.ERROR, Status: "PASS"},
	}
	us := int64(1604000)
	rep.Findings = []rules.Diagnostic{{
		File: "pse.a12.1.2", Station: 12, RecordIndex: 1, FrameIndex: 4,
		Offset: "0x4C10", RuleId: "AT-FRM-001", Severity: rules.ERROR,
		Message: "sync code mismatch", Refs: []string{"sync"}, Count: 2, TimestampUs: &us,
	}}
	return rep
}

func TestAcceptanceJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptance.json")
	rep := sampleReport()
	if err := SaveAcceptanceJSON(rep, path); err != nil {
		t.Fatalf("SaveAcceptanceJSON: %v", err)
	}
	got, err := LoadAcceptanceJSON(path)
	if err != nil {
		t.Fatalf("LoadAcceptanceJSON: %v", err)
	}
	if got.Summary.Frames != 270 || len(got.GateMatrix) != 2 || got.Findings[0].Station != 12 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadAcceptanceJSONRejectsInvalidSummary(t *testing.T) {
	tests := []struct {
		name string
		edit func(*rules.AcceptanceReport)
	}{
		{"unknown format", func(r *rules.AcceptanceReport) { r.Summary.Format = "mseed" }},
		{"negative frames", func(r *rules.AcceptanceReport) { r.Summary.Frames = -1 }},
		{"flagged beyond frames", func(r *rules.AcceptanceReport) { r.Summary.Flagged = 271 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "acceptance.json")
			rep := sampleReport()
			tc.edit(&rep)
			if err := SaveAcceptanceJSON(rep, path); err != nil {
				t.Fatalf("SaveAcceptanceJSON: %v", err)
			}
			if _, err := LoadAcceptanceJSON(path); !errors.Is(err, ErrInvalidReport) {
				t.Fatalf("LoadAcceptanceJSON err = %v, want ErrInvalidReport", err)
			}
		})
	}

	// a report for a tape that never scanned carries no format
	path := filepath.Join(t.TempDir(), "acceptance.json")
	rep := sampleReport()
	rep.Summary.Format = ""
	if err := SaveAcceptanceJSON(rep, path); err != nil {
		t.Fatalf("SaveAcceptanceJSON: %v", err)
	}
	if _, err := LoadAcceptanceJSON(path); err != nil {
		t.Fatalf("LoadAcceptanceJSON without format: %v", err)
	}
}

func TestSaveAcceptancePDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptance.pdf")
	s := summary.Summary{
		Interval: summary.Stats{Count: 10, Mean: 604, StdDev: 0.5},
		Channels: []summary.ChannelStats{{Station: 12, Channel: "lpz", SampleRate: 6.625, Stats: summary.Stats{Count: 8, Mean: 511}}},
	}
	err := SaveAcceptancePDF(sampleReport(), path, PDFOptions{TapeSHA256: testHash, Summary: &s})
	if err != nil {
		t.Fatalf("SaveAcceptancePDF: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read pdf: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header")
	}
}

func TestSaveAcceptancePDFNeedsFontForJapanese(t *testing.T) {
	path := filepath.Join(t.TempDir(), "acceptance.pdf")
	if err := SaveAcceptancePDF(sampleReport(), path, PDFOptions{Lang: LangJapanese}); err == nil {
		t.Fatalf("expected an error without a UTF-8 font")
	}
}

func TestHashToQR(t *testing.T) {
	png, err := HashToQR(testHash, 0)
	if err != nil {
		t.Fatalf("HashToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("HashToQR did not return a PNG")
	}
	if _, err := HashToQR("  zz  ", 64); err == nil {
		t.Fatalf("expected error for a hash with no hex digits")
	}
}

func TestTranslator(t *testing.T) {
	tests := []struct {
		in   string
		want Language
		err  bool
	}{
		{"", LangEnglish, false},
		{"EN", LangEnglish, false},
		{"ja-JP", LangJapanese, false},
		{"de", LangEnglish, true},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLanguage(tc.in)
			if got != tc.want {
				t.Fatalf("ParseLanguage(%q) = %v, want %v", tc.in, got, tc.want)
			}
			if tc.err != errors.Is(err, ErrUnsupportedLanguage) {
				t.Fatalf("ParseLanguage(%q) err = %v", tc.in, err)
			}
		})
	}
	tr := NewTranslator(LangJapanese)
	if tr.T("summary") == "Summary" {
		t.Fatalf("japanese translator returned the english string")
	}
	if got := tr.T("missing.key"); got != "missing.key" {
		t.Fatalf("T(missing) = %q, want key", got)
	}
	if got := NewTranslator(LangEnglish).Format("station", 12); got != "Station 12" {
		t.Fatalf("Format = %q", got)
	}
	en := NewTranslator(LangEnglish)
	if en.Verdict(true) != "PASS" || en.Verdict(false) != "FAIL" {
		t.Fatalf("english verdicts = %q/%q", en.Verdict(true), en.Verdict(false))
	}
	if got := tr.Verdict(false); got != "不合格" {
		t.Fatalf("japanese fail verdict = %q", got)
	}
}
