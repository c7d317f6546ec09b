package rules

import (
	"fmt"
	"strings"
	"time"

	"example.com/alsepgate/internal/alsep"
)

func int64Ptr(v int64) *int64 { return &v }

func stringPtr(s string) *string { return &s }

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckNonEmpty", CheckNonEmpty)
	e.Register("CheckTruncation", CheckTruncation)
	e.Register("CheckHeaderDuplicated", CheckHeaderDuplicated)
	e.Register("CheckRecordMask", CheckRecordMask)
	e.Register("CheckFrameMask", CheckFrameMask)
	e.Register("CheckLSPEWindow", CheckLSPEWindow)
	e.Register("CheckCatalogCoverage", CheckCatalogCoverage)
}

func newDiag(ctx *Context, rule Rule, sev Severity, msg string) Diagnostic {
	return Diagnostic{
		Ts: time.Now(), File: ctx.InputFile, RuleId: rule.RuleId, Severity: sev,
		Message: msg, Refs: rule.Refs,
	}
}

func okDiag(ctx *Context, rule Rule, msg string) Diagnostic {
	return newDiag(ctx, rule, INFO, msg)
}

func ruleMessage(rule Rule, fallback string) string {
	if strings.TrimSpace(rule.Message) != "" {
		return rule.Message
	}
	return fallback
}

// maskParam reads the "mask" parameter naming an error bit.
func maskParam(rule Rule) (alsep.ErrorMask, error) {
	raw, ok := rule.Params["mask"]
	if !ok {
		return 0, fmt.Errorf("rule %s: missing mask parameter", rule.RuleId)
	}
	name, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("rule %s: mask parameter must be a string", rule.RuleId)
	}
	mask, ok := alsep.ParseMask(name)
	if !ok {
		return 0, fmt.Errorf("rule %s: unknown mask %q", rule.RuleId, name)
	}
	return mask, nil
}

func tallyDiag(ctx *Context, rule Rule, t *MaskTally, unit string, total int) Diagnostic {
	d := newDiag(ctx, rule, rule.Severity,
		fmt.Sprintf("%s: %d of %d %s flagged", ruleMessage(rule, rule.RuleId), t.Count, total, unit))
	d.Station = t.FirstStation
	d.RecordIndex = t.FirstRecord
	d.FrameIndex = t.FirstFrame
	d.Offset = fmt.Sprintf("0x%X", t.FirstOffset)
	if unit == "frames" {
		d.TimestampUs = int64Ptr(t.FirstMsec * 1000)
		d.TimestampSource = stringPtr("msec_of_year")
	}
	return d
}

func CheckNonEmpty(ctx *Context, rule Rule) (Diagnostic, int, error) {
	if ctx.Scan.Frames == 0 {
		return newDiag(ctx, rule, rule.Severity, ruleMessage(rule, "tape holds no frames")), 1, nil
	}
	return okDiag(ctx, rule, fmt.Sprintf("%d records, %d frames", ctx.Scan.Records, ctx.Scan.Frames)), 0, nil
}

func CheckTruncation(ctx *Context, rule Rule) (Diagnostic, int, error) {
	if ctx.Scan.Truncated != nil {
		return newDiag(ctx, rule, rule.Severity, ctx.Scan.Truncated.Error()), 1, nil
	}
	return okDiag(ctx, rule, "tape ends on a block boundary"), 0, nil
}

func CheckHeaderDuplicated(ctx *Context, rule Rule) (Diagnostic, int, error) {
	if ctx.Scan.Records > 0 && !ctx.Scan.HeaderDuplicated {
		d := newDiag(ctx, rule, rule.Severity, ruleMessage(rule, "work tape header is not duplicated"))
		d.Offset = fmt.Sprintf("0x%X", alsep.HeaderSize)
		return d, 1, nil
	}
	return okDiag(ctx, rule, "header duplicated"), 0, nil
}

func CheckRecordMask(ctx *Context, rule Rule) (Diagnostic, int, error) {
	mask, err := maskParam(rule)
	if err != nil {
		return newDiag(ctx, rule, ERROR, "invalid rule"), 0, err
	}
	t, ok := ctx.Scan.RecordMasks[mask]
	if !ok {
		return okDiag(ctx, rule, fmt.Sprintf("no records flagged %s", mask)), 0, nil
	}
	return tallyDiag(ctx, rule, t, "records", ctx.Scan.Records), t.Count, nil
}

func CheckFrameMask(ctx *Context, rule Rule) (Diagnostic, int, error) {
	mask, err := maskParam(rule)
	if err != nil {
		return newDiag(ctx, rule, ERROR, "invalid rule"), 0, err
	}
	t, ok := ctx.Scan.FrameMasks[mask]
	if !ok {
		return okDiag(ctx, rule, fmt.Sprintf("no frames flagged %s", mask)), 0, nil
	}
	return tallyDiag(ctx, rule, t, "frames", ctx.Scan.Frames), t.Count, nil
}

// CheckLSPEWindow reports WTH frames recorded outside the LSPE listening
// period. It never changes frame error masks.
func CheckLSPEWindow(ctx *Context, rule Rule) (Diagnostic, int, error) {
	if ctx.Format != alsep.FormatWTH {
		return okDiag(ctx, rule, "not a WTH tape"), 0, nil
	}
	t := ctx.Scan.LSPEOutside
	if t == nil || t.Count == 0 {
		return okDiag(ctx, rule, "all frames inside the LSPE listening period"), 0, nil
	}
	return tallyDiag(ctx, rule, t, "frames", ctx.Scan.Frames), t.Count, nil
}

// CheckCatalogCoverage warns about stations without channel codes in the
// catalog, since they cannot be exported to miniSEED.
func CheckCatalogCoverage(ctx *Context, rule Rule) (Diagnostic, int, error) {
	if ctx.Catalog == nil || ctx.Catalog.IsEmpty() {
		return okDiag(ctx, rule, "no catalog loaded"), 0, nil
	}
	var missing []string
	for _, st := range ctx.Scan.StationList() {
		if st < 0 {
			continue
		}
		if !ctx.Catalog.HasStation(st) {
			missing = append(missing, fmt.Sprintf("%d", st))
		}
	}
	if len(missing) == 0 {
		return okDiag(ctx, rule, "every station has catalog entries"), 0, nil
	}
	msg := fmt.Sprintf("%s: stations %s", ruleMessage(rule, "stations missing from catalog"), strings.Join(missing, ", "))
	return newDiag(ctx, rule, rule.Severity, msg), len(missing), nil
}
