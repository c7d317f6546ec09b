package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
	"example.com/alsepgate/internal/common"
	"example.com/alsepgate/internal/export"
	"example.com/alsepgate/internal/manifest"
	"example.com/alsepgate/internal/pgstore"
	"example.com/alsepgate/internal/report"
	"example.com/alsepgate/internal/rules"
	"example.com/alsepgate/internal/summary"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	cmd := os.Args[1]
	switch cmd {
	case "info":
		infoCmd(os.Args[2:])
	case "summary":
		summaryCmd(os.Args[2:])
	case "csv":
		csvCmd(os.Args[2:])
	case "pgcopy":
		pgcopyCmd(os.Args[2:])
	case "mseed":
		mseedCmd(os.Args[2:])
	case "load":
		loadCmd(os.Args[2:])
	case "validate":
		validateCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	case "manifest":
		manifestCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`alsepctl %s (built %s) <command> [options]

Commands:
  info      --in <tape> --format pse|wtn|wth [-r] [-f] [-d] [--package <id>] [--strict-header]
  summary   --in <tape> --format pse|wtn|wth [--out <summary.json>]
  csv       --in <tape> --format pse|wtn|wth --out-dir <dir>
  pgcopy    --in <tape> --format pse|wtn|wth --id <file id> [--lsg] [--out <copy.sql>]
  mseed     --in <tape> --format pse|wtn|wth --out <file.mseed> [--catalog <catalog.json>]
  load      --in <tape> --format pse|wtn|wth --id <file id> [--lsg] [--init-schema]
  validate  --in <tape> --format pse|wtn|wth [--rules <rulepack.json>] --out <diagnostics.jsonl> --acceptance <acceptance.json>
  report    --acceptance <acceptance.json> --out <report.pdf> [--lang en|ja] [--font <ttf>] [--tape <tape>]
  manifest  --inputs <comma-separated> [--tape <tape>] --out <manifest.json> | --verify <manifest.json>
  batch     --in <dir> --out-dir <dir> [--rules <rulepack.json>] [--concurrency N]

Common tape options: --year N (override header year), --carry (link PSE records),
--copy-on-error, --tolerant-header (work tapes without a duplicated header).
`, version, buildDate)
}

// tapeFlags are the reader settings shared by every tape command.
type tapeFlags struct {
	in          *string
	format      *string
	year        *int
	pkg         *int
	carry       *bool
	copyOnError *bool
	tolerant    *bool
}

func addTapeFlags(fs *flag.FlagSet) *tapeFlags {
	return &tapeFlags{
		in:          fs.String("in", "", "input tape image (.pse, .wtn, .wth, optionally .zst)"),
		format:      fs.String("format", "", "tape format: pse, wtn or wth (default from extension)"),
		year:        fs.Int("year", 0, "override the header year"),
		pkg:         fs.Int("package", 0, "keep only frames of this ALSEP package id (work tapes)"),
		carry:       fs.Bool("carry", false, "link the first frame of a PSE record to the previous record"),
		copyOnError: fs.Bool("copy-on-error", false, "copy sample 1 into sample 0 of flagged frames"),
		tolerant:    fs.Bool("tolerant-header", false, "accept work tapes whose header is not duplicated"),
	}
}

func (t *tapeFlags) options() (alsep.ReaderOptions, error) {
	var opts alsep.ReaderOptions
	if *t.in == "" {
		return opts, errors.New("required: --in")
	}
	name := *t.format
	if name == "" {
		f, ok := formatFromName(*t.in)
		if !ok {
			return opts, fmt.Errorf("cannot tell the format of %s; use --format", *t.in)
		}
		opts.Format = f
	} else {
		f, err := alsep.ParseFormat(name)
		if err != nil {
			return opts, err
		}
		opts.Format = f
	}
	if *t.tolerant {
		opts.HeaderPolicy = alsep.HeaderTolerant
	}
	if *t.pkg != 0 {
		p := alsep.Package(*t.pkg)
		if !p.Valid() {
			return opts, fmt.Errorf("invalid package id %d", *t.pkg)
		}
		opts.Package = p
	}
	opts.YearOverride = *t.year
	opts.Stitch = alsep.StitchOptions{CarryAcrossRecords: *t.carry, CopyOnError: *t.copyOnError}
	return opts, nil
}

// formatFromName maps a .pse, .wtn or .wth extension, with an optional .zst
// suffix, or the archival "pse.a15.1.2" naming where the format leads.
func formatFromName(path string) (alsep.Format, bool) {
	name := strings.TrimSuffix(strings.ToLower(filepath.Base(path)), ".zst")
	if f, err := alsep.ParseFormat(strings.TrimPrefix(filepath.Ext(name), ".")); err == nil {
		return f, true
	}
	lead, _, _ := strings.Cut(name, ".")
	f, err := alsep.ParseFormat(lead)
	return f, err == nil && lead != name
}

func fail(what string, err error) {
	fmt.Println(what+":", err)
	os.Exit(1)
}

func mustOptions(t *tapeFlags) alsep.ReaderOptions {
	opts, err := t.options()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return opts
}

func openTape(path string, opts alsep.ReaderOptions) *alsep.TapeReader {
	r, err := alsep.Open(path, opts)
	if err != nil {
		fail("open tape", err)
	}
	return r
}

func reportDrain(res export.DrainResult) {
	fmt.Printf("records=%d frames=%d flagged=%d\n", res.Batches, res.Frames, res.ErrorFrames)
	if res.Truncated != nil {
		common.Warnf("input ended early: %v", res.Truncated)
	}
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	tf := addTapeFlags(fs)
	showRecords := fs.Bool("r", false, "print record headers")
	showFrames := fs.Bool("f", false, "print frame headers")
	showData := fs.Bool("d", false, "print frame data")
	strict := fs.Bool("strict-header", false, "fail when a work tape header is not duplicated")
	fs.Parse(args)

	opts := mustOptions(tf)
	if !*strict {
		opts.HeaderPolicy = alsep.HeaderTolerant
	}
	show := infoShow{Records: *showRecords, Frames: *showFrames, Data: *showData}
	if err := writeInfo(os.Stdout, *tf.in, opts, show); err != nil {
		fail("info", err)
	}
}

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	tf := addTapeFlags(fs)
	out := fs.String("out", "", "write the summary JSON here instead of stdout")
	maxSamples := fs.Int("max-samples", summary.DefaultMaxSamples, "samples kept per channel for statistics")
	fs.Parse(args)

	opts := mustOptions(tf)
	sum, err := summary.Tape(*tf.in, opts, *maxSamples)
	if err != nil {
		fail("summary", err)
	}
	if err := writeJSONFile(*out, sum); err != nil {
		fail("write summary", err)
	}
}

func csvCmd(args []string) {
	fs := flag.NewFlagSet("csv", flag.ExitOnError)
	tf := addTapeFlags(fs)
	outDir := fs.String("out-dir", ".", "output directory")
	name := fs.String("name", "", "file name prefix (default: tape base name)")
	fs.Parse(args)

	opts := mustOptions(tf)
	prefix := *name
	if prefix == "" {
		prefix = common.TapeBaseName(*tf.in)
	}
	r := openTape(*tf.in, opts)
	defer r.Close()
	w, err := export.NewCSVWriter(*outDir, prefix, opts.Format)
	if err != nil {
		fail("create csv", err)
	}
	res, err := export.Drain(r, w)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fail("csv", err)
	}
	reportDrain(res)
	for _, p := range w.Paths() {
		fmt.Println("Wrote:", p)
	}
}

func pgcopyCmd(args []string) {
	fs := flag.NewFlagSet("pgcopy", flag.ExitOnError)
	tf := addTapeFlags(fs)
	id := fs.Int("id", 0, "file id written into every row")
	lsg := fs.Bool("lsg", false, "write the Apollo 17 gravimeter table (WTN)")
	out := fs.String("out", "", "output file (default stdout)")
	fs.Parse(args)

	opts := mustOptions(tf)
	r := openTape(*tf.in, opts)
	defer r.Close()
	dst := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fail("create output", err)
		}
		defer f.Close()
		dst = f
	}
	cw := export.NewCopyWriter(dst, export.CopyOptions{FileID: *id, LSG: *lsg})
	res, err := export.Drain(r, cw)
	if ferr := cw.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		fail("pgcopy", err)
	}
	if res.Truncated != nil {
		common.Warnf("input ended early: %v", res.Truncated)
	}
	common.Logf("pgcopy %s: %d rows from %d frames", *tf.in, cw.Rows(), res.Frames)
}

func mseedCmd(args []string) {
	fs := flag.NewFlagSet("mseed", flag.ExitOnError)
	tf := addTapeFlags(fs)
	out := fs.String("out", "", "output miniSEED file")
	catPath := fs.String("catalog", "", "station catalog JSON (default: built-in XA catalog)")
	fs.Parse(args)

	if *out == "" {
		fmt.Println("required: --out")
		os.Exit(1)
	}
	opts := mustOptions(tf)
	cat, err := catalog.EnsureLoaded(*catPath)
	if err != nil {
		fail("catalog", err)
	}
	r := openTape(*tf.in, opts)
	defer r.Close()
	f, err := os.Create(*out)
	if err != nil {
		fail("create output", err)
	}
	defer f.Close()
	mw := export.NewMSeedWriter(f, cat)
	res, err := export.Drain(r, mw)
	if cerr := mw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		fail("mseed", err)
	}
	reportDrain(res)
	if mw.Missing > 0 {
		common.Warnf("%d samples dropped for channels missing from the catalog", mw.Missing)
	}
	fmt.Printf("Wrote %d records to %s\n", mw.Records(), *out)
}

func loadCmd(args []string) {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	tf := addTapeFlags(fs)
	id := fs.Int("id", 0, "file id")
	lsg := fs.Bool("lsg", false, "load the Apollo 17 gravimeter table (WTN)")
	initSchema := fs.Bool("init-schema", false, "create the tables when missing")
	replace := fs.Bool("replace", false, "delete an earlier load with the same id first")
	timeout := fs.Duration("timeout", 30*time.Minute, "load timeout")
	fs.Parse(args)

	if *id <= 0 {
		fmt.Println("required: --id")
		os.Exit(1)
	}
	opts := mustOptions(tf)
	hash, _, err := common.Sha256OfFile(*tf.in)
	if err != nil {
		fail("hash tape", err)
	}
	store, err := pgstore.Open()
	if err != nil {
		fail("database", err)
	}
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if *initSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			fail("schema", err)
		}
	}
	if *replace {
		deleted, err := store.Delete(ctx, *id)
		if err != nil {
			fail("replace", err)
		}
		if deleted {
			common.Logf("removed earlier load of file id %d", *id)
		}
	}
	r := openTape(*tf.in, opts)
	defer r.Close()
	res, err := store.Load(ctx, pgstore.File{
		ID:     *id,
		Name:   filepath.Base(*tf.in),
		Format: opts.Format,
		Sha256: hash,
	}, r, *lsg)
	if err != nil {
		if errors.Is(err, pgstore.ErrDuplicateFile) {
			fmt.Println("already loaded:", err)
			os.Exit(2)
		}
		fail("load", err)
	}
	if res.Truncated {
		common.Warnf("%s ended inside a block; loaded what was complete", *tf.in)
	}
	fmt.Printf("Loaded %d rows from %d records\n", res.Rows, res.Batches)
}

func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	tf := addTapeFlags(fs)
	rulesPath := fs.String("rules", "", "rulepack.json (default: built-in rules)")
	catPath := fs.String("catalog", "", "station catalog JSON")
	outDiag := fs.String("out", "diagnostics.jsonl", "diagnostics output")
	outAcc := fs.String("acceptance", "acceptance_report.json", "acceptance json")
	includeTimestamps := fs.Bool("diag-include-timestamps", true, "include timestamp metadata in diagnostics output")
	metricsFlag := fs.Bool("metrics", false, "print decode throughput metrics")
	progressFlag := fs.Bool("progress", false, "display decode progress updates")
	fs.Parse(args)

	opts := mustOptions(tf)
	var metrics *common.Metrics
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		if info, err := os.Stat(*tf.in); err == nil {
			metrics.SetTotalBytes(info.Size())
		}
	}
	rep, diags, err := validateTape(*tf.in, opts, validateOptions{
		RulesPath:         *rulesPath,
		CatalogPath:       *catPath,
		DiagnosticsPath:   *outDiag,
		AcceptancePath:    *outAcc,
		IncludeTimestamps: *includeTimestamps,
		Metrics:           metrics,
		Progress:          *progressFlag,
	})
	if err != nil {
		fail("validate", err)
	}
	fmt.Printf("PASS=%v, errors=%d, warnings=%d, diagnostics=%d\n", rep.Summary.Pass, rep.Summary.Errors, rep.Summary.Warnings, diags)
	if metrics != nil && *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Metrics: duration=%s records=%d frames=%d flagged=%d processed=%s throughput=%.2f MB/s (%.0f frames/s)\n",
			snap.Duration.Round(10*time.Millisecond),
			snap.Records,
			snap.Frames,
			snap.ErrorFrames,
			common.FormatBytes(snap.Bytes),
			snap.ThroughputBytesPerSecond()/1_000_000,
			snap.FramesPerSecond(),
		)
	}
}

type validateOptions struct {
	RulesPath         string
	CatalogPath       string
	DiagnosticsPath   string
	AcceptancePath    string
	IncludeTimestamps bool
	Metrics           *common.Metrics
	Progress          bool
}

// validateTape runs the rule pack over one tape and writes the diagnostics
// and acceptance files. It returns the report and the diagnostic count.
func validateTape(path string, opts alsep.ReaderOptions, vo validateOptions) (rules.AcceptanceReport, int, error) {
	var rp rules.RulePack
	var err error
	if vo.RulesPath != "" {
		rp, err = rules.LoadRulePack(vo.RulesPath)
	} else {
		rp, err = rules.DefaultRulePack()
	}
	if err != nil {
		return rules.AcceptanceReport{}, 0, fmt.Errorf("rule pack: %w", err)
	}
	cat, err := catalog.EnsureLoaded(vo.CatalogPath)
	if err != nil {
		return rules.AcceptanceReport{}, 0, fmt.Errorf("catalog: %w", err)
	}
	engine := rules.NewEngine(rp)
	engine.RegisterBuiltins()
	engine.SetConfigValue("diag.include_timestamps", vo.IncludeTimestamps)

	ctx := &rules.Context{
		InputFile: path,
		Format:    opts.Format,
		Profile:   rp.Profile,
		Options:   opts,
		Catalog:   cat,
		Metrics:   vo.Metrics,
	}
	if vo.Metrics != nil {
		vo.Metrics.Start()
	}
	var stopProgress func()
	if vo.Metrics != nil && vo.Progress {
		stopProgress = common.StartProgressPrinter(os.Stderr, vo.Metrics, 500*time.Millisecond)
	}
	diags, err := engine.Eval(ctx)
	if stopProgress != nil {
		stopProgress()
	}
	if vo.Metrics != nil {
		vo.Metrics.Stop()
	}
	if err != nil {
		return rules.AcceptanceReport{}, 0, fmt.Errorf("eval: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSON(vo.DiagnosticsPath); err != nil {
		return rules.AcceptanceReport{}, 0, fmt.Errorf("write diagnostics: %w", err)
	}
	rep := engine.MakeAcceptance()
	if err := report.SaveAcceptanceJSON(rep, vo.AcceptancePath); err != nil {
		return rep, 0, fmt.Errorf("write acceptance: %w", err)
	}
	return rep, len(diags), nil
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	accPath := fs.String("acceptance", "", "acceptance_report.json")
	out := fs.String("out", "acceptance_report.pdf", "output PDF")
	lang := fs.String("lang", "en", "report language (en, ja)")
	font := fs.String("font", "", "UTF-8 TrueType font, required for Japanese")
	tape := fs.String("tape", "", "tape image; adds its SHA-256 QR code and channel statistics")
	format := fs.String("format", "", "tape format when --tape has no recognised extension")
	fs.Parse(args)

	if *accPath == "" {
		fmt.Println("required: --acceptance")
		os.Exit(1)
	}
	l, err := report.ParseLanguage(*lang)
	if err != nil {
		fail("language", err)
	}
	rep, err := report.LoadAcceptanceJSON(*accPath)
	if err != nil {
		fail("load acceptance", err)
	}
	opts := report.PDFOptions{Lang: l, FontPath: *font}
	if *tape != "" {
		hash, _, err := common.Sha256OfFile(*tape)
		if err != nil {
			fail("hash tape", err)
		}
		opts.TapeSHA256 = hash
		f, ok := formatFromName(*tape)
		if *format != "" {
			if f, err = alsep.ParseFormat(*format); err != nil {
				fail("format", err)
			}
			ok = true
		}
		if ok {
			sum, err := summary.Tape(*tape, alsep.ReaderOptions{Format: f, HeaderPolicy: alsep.HeaderTolerant}, summary.DefaultMaxSamples)
			if err != nil {
				common.Warnf("channel statistics skipped: %v", err)
			} else {
				opts.Summary = &sum
			}
		}
	}
	if err := report.SaveAcceptancePDF(rep, *out, opts); err != nil {
		fail("write pdf", err)
	}
	fmt.Println("Wrote PDF:", *out)
}

func manifestCmd(args []string) {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	inputs := fs.String("inputs", "", "comma-separated output paths")
	tape := fs.String("tape", "", "source tape image")
	out := fs.String("out", "manifest.json", "output json")
	verify := fs.String("verify", "", "verify an existing manifest instead of writing one")
	signKey := fs.String("sign-key", "", "RSA private key (PEM) used to sign the manifest")
	cert := fs.String("cert", "", "certificate or public key (PEM) checked against the signature with --verify")
	fs.Parse(args)

	if *verify != "" {
		m, err := manifest.Load(*verify)
		if err != nil {
			fail("load manifest", err)
		}
		bad, err := manifest.Verify(m)
		if err != nil {
			fail("verify", err)
		}
		if len(bad) > 0 {
			for _, p := range bad {
				fmt.Println("MISMATCH:", p)
			}
			os.Exit(1)
		}
		if *cert != "" {
			pub, err := os.ReadFile(*cert)
			if err != nil {
				fail("read certificate", err)
			}
			if err := manifest.VerifySignature(*verify, pub); err != nil {
				fail("signature", err)
			}
			fmt.Println("Signature OK")
		}
		fmt.Println("OK")
		return
	}

	var paths []string
	for _, p := range strings.Split(*inputs, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		paths = append(paths, p)
	}
	if len(paths) == 0 && *tape == "" {
		fmt.Println("required: --inputs or --tape")
		os.Exit(1)
	}
	m, err := manifest.Build(*tape, paths)
	if err != nil {
		fail("manifest build", err)
	}
	if err := manifest.Save(m, *out); err != nil {
		fail("manifest save", err)
	}
	fmt.Println("Wrote manifest:", *out)
	if *signKey != "" {
		key, err := os.ReadFile(*signKey)
		if err != nil {
			fail("read signing key", err)
		}
		sig, err := manifest.Sign(*out, key)
		if err != nil {
			fail("manifest sign", err)
		}
		fmt.Println("Wrote signature:", sig)
	}
}
