package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/rules"
)

// ErrInvalidReport is returned by LoadAcceptanceJSON for a file that parses
// but cannot be an acceptance report for an ALSEP tape.
var ErrInvalidReport = errors.New("report: invalid acceptance report")

// SaveAcceptanceJSON writes the gate matrix and findings for one tape as
// indented JSON, the form `alsepctl report` reads back.
func SaveAcceptanceJSON(rep rules.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0o644)
}

// LoadAcceptanceJSON reads a report written by SaveAcceptanceJSON. The
// summary format, when present, must name a tape format and the frame
// counts must be consistent.
func LoadAcceptanceJSON(path string) (rules.AcceptanceReport, error) {
	var rep rules.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, err
	}
	return rep, checkSummary(rep)
}

func checkSummary(rep rules.AcceptanceReport) error {
	s := rep.Summary
	if s.Format != "" {
		if _, err := alsep.ParseFormat(s.Format); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidReport, err)
		}
	}
	switch {
	case s.Records < 0 || s.Frames < 0 || s.Flagged < 0:
		return fmt.Errorf("%w: negative record or frame count", ErrInvalidReport)
	case s.Flagged > s.Frames:
		return fmt.Errorf("%w: %d flagged frames out of %d", ErrInvalidReport, s.Flagged, s.Frames)
	}
	return nil
}
