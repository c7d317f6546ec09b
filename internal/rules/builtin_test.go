package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
)

const day = int64(86400000)

// pseTapeBytes builds PSE records of 90 clean frames for station 15. mutate
// may alter the raw frames of each record before encoding.
func pseTapeBytes(t *testing.T, records int, mutate func(rec int, frames []alsep.RawFrame)) []byte {
	t.Helper()
	var out []byte
	for r := 0; r < records; r++ {
		rec := alsep.Record{Format: alsep.FormatPSE, TapeID: 1, Station: 15, Year: 1973, Variant: alsep.PSEOld, PhysRecords: 1, RecordNumber: uint32(r + 1)}
		frames := make([]alsep.RawFrame, 90)
		for i := range frames {
			frames[i] = alsep.RawFrame{
				MsecOfYear: 100*day + int64(r*90+i)*alsep.FramePeriodMs,
				Sync:       alsep.SyncCode,
				FrameCount: uint32(i),
				Words:      make([]alsep.Word3, 15),
			}
		}
		if mutate != nil {
			mutate(r, frames)
		}
		b, err := alsep.EncodePSERecord(rec, frames)
		if err != nil {
			t.Fatalf("EncodePSERecord: %v", err)
		}
		out = append(out, b...)
	}
	return out
}

func writeTape(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pse.a15.1.1")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func evalDefault(t *testing.T, ctx *Context) (*Engine, map[string]Diagnostic) {
	t.Helper()
	rp, err := DefaultRulePack()
	if err != nil {
		t.Fatalf("DefaultRulePack: %v", err)
	}
	eng := NewEngine(rp)
	eng.RegisterBuiltins()
	diags, err := eng.Eval(ctx)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	byID := make(map[string]Diagnostic)
	for _, d := range diags {
		byID[d.RuleId] = d
	}
	return eng, byID
}

func TestCleanTapePasses(t *testing.T) {
	path := writeTape(t, pseTapeBytes(t, 2, nil))
	eng, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatPSE})
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Errors != 0 || rep.Summary.Warnings != 0 {
		t.Fatalf("summary = %+v findings = %+v", rep.Summary, rep.Findings)
	}
	if rep.Summary.Records != 2 || rep.Summary.Frames != 180 || rep.Summary.Flagged != 0 {
		t.Fatalf("summary counts = %+v", rep.Summary)
	}
	if _, ok := diags["AT-FILE-003"]; ok {
		t.Fatalf("work tape rule evaluated for a PSE tape")
	}
	for _, g := range rep.GateMatrix {
		if g.Status != "PASS" {
			t.Fatalf("gate %s = %s", g.RuleId, g.Status)
		}
	}
}

func TestSyncErrorsAreReported(t *testing.T) {
	data := pseTapeBytes(t, 1, func(_ int, frames []alsep.RawFrame) {
		frames[10].Sync = 0
		frames[20].Sync = 1
	})
	path := writeTape(t, data)
	eng, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatPSE})
	d := diags["AT-FRM-001"]
	if d.Severity != ERROR || d.Count != 2 {
		t.Fatalf("sync diagnostic = %+v", d)
	}
	if d.FrameIndex != 10 || d.Offset != fmt.Sprintf("0x%X", 16+10*72) {
		t.Fatalf("first occurrence = frame %d offset %s", d.FrameIndex, d.Offset)
	}
	if d.TimestampUs == nil || *d.TimestampUs != (100*day+10*alsep.FramePeriodMs)*1000 {
		t.Fatalf("TimestampUs = %v", d.TimestampUs)
	}
	if rep := eng.MakeAcceptance(); rep.Summary.Pass {
		t.Fatalf("tape with sync errors passed")
	}
}

func TestTruncatedTapeFails(t *testing.T) {
	data := append(pseTapeBytes(t, 1, nil), make([]byte, 500)...)
	path := writeTape(t, data)
	_, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatPSE})
	d := diags["AT-FILE-002"]
	if d.Severity != ERROR || d.Count != 1 {
		t.Fatalf("truncation diagnostic = %+v", d)
	}
}

func TestHeaderDuplicationFinding(t *testing.T) {
	rec := alsep.Record{Format: alsep.FormatWTN, TapeID: 3, Year: 1976, NumActive: 1}
	rec.ActiveStations[0] = uint32(alsep.PackageApollo12)
	header, err := alsep.EncodeRecord(rec)
	if err != nil {
		t.Fatalf("EncodeRecord: %v", err)
	}
	data := append([]byte{}, header...)
	for i := 0; i < 3; i++ {
		data = append(data, alsep.EncodeFrame(rec, alsep.RawFrame{
			Package:    alsep.PackageApollo12,
			MsecOfYear: 100*day + int64(i)*alsep.FramePeriodMs,
			FrameCount: uint32(i),
			Sync:       alsep.SyncCode,
		})...)
	}
	path := writeTape(t, data)
	_, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatWTN})
	d := diags["AT-FILE-003"]
	if d.Severity != WARN || d.Count != 1 {
		t.Fatalf("header diagnostic = %+v", d)
	}
	if diags["AT-FILE-001"].Count != 0 {
		t.Fatalf("tolerant scan found no frames")
	}
}

func TestCatalogCoverage(t *testing.T) {
	store, err := catalog.FromJSON(catalog.JSONFile{Channels: []catalog.JSONEntry{
		{Station: 12, Channel: "spz", Network: "XA", Code: "S12", SEED: "SHZ", SampleRate: 53},
	}})
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	path := writeTape(t, pseTapeBytes(t, 1, nil))
	_, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatPSE, Catalog: store})
	d := diags["AT-FILE-004"]
	if d.Severity != WARN || d.Count != 1 || !strings.Contains(d.Message, "15") {
		t.Fatalf("catalog diagnostic = %+v", d)
	}
}

func TestLSPEWindowIsInformational(t *testing.T) {
	rec := alsep.Record{Format: alsep.FormatWTH, TapeID: 4, Year: 1977, NumActive: 1}
	rec.ActiveStations[0] = uint32(alsep.PackageApollo17)
	frames := make([]alsep.RawFrame, 4)
	for i := range frames {
		frames[i] = alsep.RawFrame{
			Package:    alsep.PackageApollo17,
			MsecOfYear: 200*day + int64(i)*alsep.FramePeriodWTHMs,
			Sync:       alsep.SyncCodeWTH,
		}
	}
	data, err := alsep.EncodeWorkTape(rec, frames)
	if err != nil {
		t.Fatalf("EncodeWorkTape: %v", err)
	}
	path := writeTape(t, data)
	eng, diags := evalDefault(t, &Context{InputFile: path, Format: alsep.FormatWTH})
	d := diags["AT-FRM-009"]
	if d.Severity != INFO || d.Count != 4 {
		t.Fatalf("lspe diagnostic = %+v", d)
	}
	rep := eng.MakeAcceptance()
	if !rep.Summary.Pass || rep.Summary.Flagged != 0 {
		t.Fatalf("summary = %+v", rep.Summary)
	}
}

func TestMaskParamErrors(t *testing.T) {
	tests := []Rule{
		{RuleId: "a"},
		{RuleId: "b", Params: map[string]any{"mask": 3}},
		{RuleId: "c", Params: map[string]any{"mask": "bogus"}},
	}
	for _, r := range tests {
		if _, err := maskParam(r); err == nil {
			t.Fatalf("maskParam(%s) accepted bad parameter", r.RuleId)
		}
	}
}
