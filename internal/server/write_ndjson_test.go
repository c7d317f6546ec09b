package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"example.com/alsepgate/internal/rules"
)

func TestValidationStreamLines(t *testing.T) {
	rec := httptest.NewRecorder()
	stream := NewValidationStream(rec)
	for i := 0; i < 2; i++ {
		d := rules.Diagnostic{RuleId: "AT-FRM-001", Severity: rules.ERROR, Station: 15, FrameIndex: i}
		if err := stream.WriteDiagnostic(d); err != nil {
			t.Fatalf("WriteDiagnostic: %v", err)
		}
	}
	var rep rules.AcceptanceReport
	rep.Summary.Format = "pse"
	rep.Summary.Frames = 90
	if err := stream.WriteAcceptance(rep, nil); err != nil {
		t.Fatalf("WriteAcceptance: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/x-ndjson" {
		t.Fatalf("content type = %q", ct)
	}
	if !rec.Flushed {
		t.Fatal("stream was not flushed")
	}
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	var last AcceptanceLine
	if err := json.Unmarshal([]byte(lines[2]), &last); err != nil {
		t.Fatalf("acceptance line: %v", err)
	}
	if last.Type != "acceptance" || last.Diagnostics != 2 || last.Acceptance.Summary.Frames != 90 {
		t.Fatalf("acceptance line = %+v", last)
	}
	if last.Artifacts == nil || len(last.Artifacts) != 0 {
		t.Fatalf("artifacts = %#v, want empty list", last.Artifacts)
	}
	if !strings.Contains(lines[2], `"artifacts":[]`) {
		t.Fatalf("artifacts not encoded as a list: %s", lines[2])
	}
}

func TestValidationStreamError(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewValidationStream(rec).WriteError(errors.New("rule pack has no rules")); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	var line ErrorLine
	if err := json.Unmarshal(rec.Body.Bytes(), &line); err != nil {
		t.Fatalf("error line: %v", err)
	}
	if line.Type != "error" || line.Error != "rule pack has no rules" {
		t.Fatalf("error line = %+v", line)
	}
}
