package rules

import (
	"bufio"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
	"example.com/alsepgate/internal/common"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

type Rule struct {
	RuleId    string         `json:"ruleId"`
	Name      string         `json:"name,omitempty"`
	Scope     string         `json:"scope"` // file|record|frame
	AppliesTo []string       `json:"appliesTo,omitempty"`
	Severity  Severity       `json:"severity"`
	Check     string         `json:"check,omitempty"`
	Refs      []string       `json:"refs"`
	Params    map[string]any `json:"params,omitempty"`
	Message   string         `json:"message"`
}

// Applies reports whether the rule covers tapes of format f. An empty
// AppliesTo list covers every format.
func (r Rule) Applies(f alsep.Format) bool {
	if len(r.AppliesTo) == 0 {
		return true
	}
	for _, name := range r.AppliesTo {
		if name == f.String() {
			return true
		}
	}
	return false
}

type RulePack struct {
	RulePackId string `json:"rulePackId"`
	Version    string `json:"version"`
	Profile    string `json:"profile"`
	Rules      []Rule `json:"rules"`
}

type Diagnostic struct {
	Ts              time.Time `json:"ts"`
	File            string    `json:"file"`
	Station         int       `json:"station,omitempty"`
	RecordIndex     int       `json:"recordIndex,omitempty"`
	FrameIndex      int       `json:"frameIndex,omitempty"`
	Offset          string    `json:"offset,omitempty"`
	RuleId          string    `json:"ruleId"`
	Severity        Severity  `json:"severity"`
	Message         string    `json:"message"`
	Refs            []string  `json:"refs"`
	Count           int       `json:"count"`
	TimestampUs     *int64    `json:"timestamp_us"`
	TimestampSource *string   `json:"timestamp_source"`
}

// GateResult is one row of the acceptance gate matrix.
type GateResult struct {
	RuleId   string   `json:"ruleId"`
	Name     string   `json:"name,omitempty"`
	Scope    string   `json:"scope"`
	Severity Severity `json:"severity"`
	Status   string   `json:"status"`
	Count    int      `json:"count"`
}

type AcceptanceReport struct {
	Summary struct {
		File     string `json:"file,omitempty"`
		Format   string `json:"format,omitempty"`
		Records  int    `json:"records"`
		Frames   int    `json:"frames"`
		Flagged  int    `json:"flaggedFrames"`
		Total    int    `json:"total"`
		Errors   int    `json:"errors"`
		Warnings int    `json:"warnings"`
		Pass     bool   `json:"pass"`
	} `json:"summary"`
	GateMatrix []GateResult `json:"gateMatrix"`
	Findings   []Diagnostic `json:"findings,omitempty"`
}

// MaskTally counts occurrences of one error bit and remembers the first.
type MaskTally struct {
	Count        int
	FirstRecord  int
	FirstFrame   int
	FirstOffset  int64
	FirstMsec    int64
	FirstStation int
}

// TapeScan is the outcome of decoding a whole tape once.
type TapeScan struct {
	Format           alsep.Format
	FirstRecord      alsep.Record
	Records          int
	Frames           int
	ErrorFrames      int
	HeaderDuplicated bool
	Truncated        error
	RecordMasks      map[alsep.ErrorMask]*MaskTally
	FrameMasks       map[alsep.ErrorMask]*MaskTally
	Stations         map[int]int
	LSPEOutside      *MaskTally
}

func newTapeScan(f alsep.Format) *TapeScan {
	return &TapeScan{
		Format:      f,
		RecordMasks: make(map[alsep.ErrorMask]*MaskTally),
		FrameMasks:  make(map[alsep.ErrorMask]*MaskTally),
		Stations:    make(map[int]int),
		LSPEOutside: &MaskTally{},
	}
}

func tally(m map[alsep.ErrorMask]*MaskTally, mask alsep.ErrorMask, fill func(*MaskTally)) {
	for _, bit := range alsep.AllMasks() {
		if !mask.Has(bit) {
			continue
		}
		t, ok := m[bit]
		if !ok {
			t = &MaskTally{}
			fill(t)
			m[bit] = t
		}
		t.Count++
	}
}

// StationList returns the stations seen, sorted.
func (s *TapeScan) StationList() []int {
	out := make([]int, 0, len(s.Stations))
	for st := range s.Stations {
		out = append(out, st)
	}
	sort.Ints(out)
	return out
}

type Context struct {
	InputFile string
	Format    alsep.Format
	Profile   string
	Options   alsep.ReaderOptions
	Catalog   *catalog.Store
	Metrics   *common.Metrics

	Scan *TapeScan
}

// EnsureScanned decodes the input once and caches the tallies. Work tape
// headers are read tolerantly so a missing duplicate becomes a finding
// instead of a failure.
func (ctx *Context) EnsureScanned() error {
	if ctx == nil {
		return errors.New("nil context")
	}
	if ctx.Scan != nil {
		return nil
	}
	if ctx.InputFile == "" {
		return errors.New("no input file")
	}
	opts := ctx.Options
	opts.Format = ctx.Format
	opts.HeaderPolicy = alsep.HeaderTolerant
	reader, err := alsep.Open(ctx.InputFile, opts)
	if err != nil {
		return err
	}
	defer reader.Close()
	if ctx.Metrics != nil {
		reader.SetMetrics(ctx.Metrics)
	}

	scan := newTapeScan(ctx.Format)
	for {
		batch, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, alsep.ErrShortBlock) {
				scan.Truncated = err
				if ctx.Metrics != nil {
					ctx.Metrics.IncShortBlock()
				}
				break
			}
			return err
		}
		scan.add(batch)
	}
	scan.HeaderDuplicated = reader.HeaderDuplicated()
	ctx.Scan = scan
	return nil
}

func (s *TapeScan) add(b alsep.Batch) {
	if s.Records == 0 {
		s.FirstRecord = b.Record
	}
	s.Records++
	tally(s.RecordMasks, b.Record.Errors, func(t *MaskTally) {
		t.FirstRecord = b.Index
		t.FirstOffset = b.Offset
		t.FirstStation = b.Record.ApolloStation()
	})
	for i := range b.Frames {
		f := &b.Frames[i]
		s.Frames++
		station := f.Station(b.Record)
		s.Stations[station]++
		if f.Errors != 0 {
			s.ErrorFrames++
		}
		fill := func(t *MaskTally) {
			t.FirstRecord = b.Index
			t.FirstFrame = f.Index
			t.FirstOffset = f.Offset
			t.FirstMsec = f.MsecOfYear
			t.FirstStation = station
		}
		tally(s.FrameMasks, f.Errors, fill)
		if b.Record.Format == alsep.FormatWTH && !alsep.InLSPEWindow(b.Record.Year, f.MsecOfYear) {
			if s.LSPEOutside.Count == 0 {
				fill(s.LSPEOutside)
			}
			s.LSPEOutside.Count++
		}
	}
}

type Engine struct {
	rulePack               RulePack
	registry               map[string]CheckFunc
	diagnostics            []Diagnostic
	gates                  []GateResult
	scan                   *TapeScan
	file                   string
	includeTimestampFields bool
}

func NewEngine(rp RulePack) *Engine {
	return &Engine{
		rulePack:               rp,
		registry:               make(map[string]CheckFunc),
		includeTimestampFields: true,
	}
}

// CheckFunc evaluates one rule against a scanned tape. The int result is
// the number of offending units.
type CheckFunc func(ctx *Context, rule Rule) (Diagnostic, int, error)

func (e *Engine) Register(name string, f CheckFunc) {
	e.registry[name] = f
}

func (e *Engine) Eval(ctx *Context) ([]Diagnostic, error) {
	if ctx == nil {
		return nil, errors.New("nil context")
	}
	if err := ctx.EnsureScanned(); err != nil {
		return nil, err
	}
	var diags []Diagnostic
	var gates []GateResult
	for _, r := range e.rulePack.Rules {
		if r.Check == "" || !r.Applies(ctx.Format) {
			continue
		}
		fn, ok := e.registry[r.Check]
		if !ok {
			diags = append(diags, Diagnostic{
				Ts: time.Now(), File: ctx.InputFile, RuleId: r.RuleId, Severity: WARN,
				Message: "no function for rule", Refs: r.Refs,
			})
			gates = append(gates, GateResult{RuleId: r.RuleId, Name: r.Name, Scope: r.Scope, Severity: WARN, Status: "SKIP"})
			continue
		}
		d, count, err := fn(ctx, r)
		if err != nil {
			d.Severity = ERROR
			d.Message = d.Message + " (" + err.Error() + ")"
		}
		d.Count = count
		diags = append(diags, d)
		gates = append(gates, GateResult{
			RuleId:   r.RuleId,
			Name:     r.Name,
			Scope:    r.Scope,
			Severity: r.Severity,
			Status:   gateStatus(d.Severity, count, err),
			Count:    count,
		})
	}
	e.diagnostics = diags
	e.gates = gates
	e.scan = ctx.Scan
	e.file = ctx.InputFile
	return diags, nil
}

func gateStatus(sev Severity, count int, err error) string {
	switch {
	case err != nil:
		return "FAIL"
	case count == 0:
		return "PASS"
	case sev == ERROR:
		return "FAIL"
	case sev == WARN:
		return "WARN"
	}
	return "PASS"
}

func (e *Engine) WriteDiagnosticsNDJSON(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := e.WriteDiagnostics(f); err != nil {
		return err
	}
	return f.Sync()
}

// WriteDiagnostics streams the diagnostics as NDJSON.
func (e *Engine) WriteDiagnostics(out io.Writer) error {
	w := bufio.NewWriter(out)
	for _, d := range e.diagnostics {
		var b []byte
		var err error
		if e.includeTimestampFields {
			b, err = json.Marshal(d)
		} else {
			b, err = json.Marshal(d.toNoTimestamp())
		}
		if err != nil {
			return err
		}
		w.Write(b)
		w.WriteString("\n")
	}
	return w.Flush()
}

type diagnosticNoTimestamp struct {
	Ts          time.Time `json:"ts"`
	File        string    `json:"file"`
	Station     int       `json:"station,omitempty"`
	RecordIndex int       `json:"recordIndex,omitempty"`
	FrameIndex  int       `json:"frameIndex,omitempty"`
	Offset      string    `json:"offset,omitempty"`
	RuleId      string    `json:"ruleId"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	Refs        []string  `json:"refs"`
	Count       int       `json:"count"`
}

func (d Diagnostic) toNoTimestamp() diagnosticNoTimestamp {
	return diagnosticNoTimestamp{
		Ts:          d.Ts,
		File:        d.File,
		Station:     d.Station,
		RecordIndex: d.RecordIndex,
		FrameIndex:  d.FrameIndex,
		Offset:      d.Offset,
		RuleId:      d.RuleId,
		Severity:    d.Severity,
		Message:     d.Message,
		Refs:        d.Refs,
		Count:       d.Count,
	}
}

func (e *Engine) SetConfigValue(key string, value any) {
	if e == nil {
		return
	}
	switch key {
	case "diag.include_timestamps":
		switch v := value.(type) {
		case bool:
			e.includeTimestampFields = v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				e.includeTimestampFields = b
			}
		default:
			if s, ok := value.(fmt.Stringer); ok {
				if b, err := strconv.ParseBool(s.String()); err == nil {
					e.includeTimestampFields = b
				}
			}
		}
	}
}

func (e *Engine) MakeAcceptance() AcceptanceReport {
	var rep AcceptanceReport
	var errs, warns int
	for _, d := range e.diagnostics {
		switch d.Severity {
		case ERROR:
			errs++
		case WARN:
			warns++
		}
	}
	rep.Summary.File = e.file
	if e.scan != nil {
		rep.Summary.Format = e.scan.Format.String()
		rep.Summary.Records = e.scan.Records
		rep.Summary.Frames = e.scan.Frames
		rep.Summary.Flagged = e.scan.ErrorFrames
	}
	rep.Summary.Total = len(e.diagnostics)
	rep.Summary.Errors = errs
	rep.Summary.Warnings = warns
	rep.Summary.Pass = errs == 0
	rep.GateMatrix = e.gates
	rep.Findings = e.diagnostics
	return rep
}

func LoadRulePack(path string) (RulePack, error) {
	var rp RulePack
	b, err := os.ReadFile(path)
	if err != nil {
		return rp, err
	}
	err = json.Unmarshal(b, &rp)
	return rp, err
}

//go:embed default_rulepack.json
var defaultRulePack []byte

// DefaultRulePack returns the built-in acceptance rules.
func DefaultRulePack() (RulePack, error) {
	var rp RulePack
	if err := json.Unmarshal(defaultRulePack, &rp); err != nil {
		return rp, fmt.Errorf("decode default rule pack: %w", err)
	}
	return rp, nil
}
