package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/common"
	"example.com/alsepgate/internal/export"
	"example.com/alsepgate/internal/manifest"
)

type batchOptions struct {
	InDir       string
	OutDir      string
	RulesPath   string
	CatalogPath string
	Concurrency int
	Tolerant    bool
	// SigningKey, when set, signs every manifest with this PEM RSA key.
	SigningKey []byte
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "out", "results directory")
	rulesPath := fs.String("rules", "", "rulepack.json (default: built-in rules)")
	catPath := fs.String("catalog", "", "station catalog JSON")
	concurrency := fs.Int("concurrency", runtime.NumCPU(), "tapes processed at once")
	tolerant := fs.Bool("tolerant-header", false, "accept work tapes whose header is not duplicated")
	signKey := fs.String("sign-key", "", "RSA private key (PEM) used to sign each manifest")
	fs.Parse(args)

	var key []byte
	if *signKey != "" {
		var err error
		if key, err = os.ReadFile(*signKey); err != nil {
			fail("read signing key", err)
		}
	}

	failed, err := runBatch(batchOptions{
		InDir:       *inDir,
		OutDir:      *outDir,
		RulesPath:   *rulesPath,
		CatalogPath: *catPath,
		Concurrency: *concurrency,
		Tolerant:    *tolerant,
		SigningKey:  key,
	})
	if err != nil {
		fail("batch", err)
	}
	if failed > 0 {
		fmt.Printf("%d tape(s) failed; see %s\n", failed, filepath.Join(*outDir, "runs.jsonl"))
		os.Exit(1)
	}
}

// findTapes walks dir for files whose extension names a tape format.
func findTapes(dir string) ([]string, error) {
	var tapes []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := formatFromName(path); ok {
			tapes = append(tapes, path)
		}
		return nil
	})
	sort.Strings(tapes)
	return tapes, err
}

// runBatch writes CSV, diagnostics, acceptance and manifest files for every
// tape under InDir into OutDir/<tape name>/ and journals each run. It returns
// the number of tapes that failed.
func runBatch(opts batchOptions) (int, error) {
	tapes, err := findTapes(opts.InDir)
	if err != nil {
		return 0, err
	}
	if len(tapes) == 0 {
		return 0, fmt.Errorf("no tapes found under %s", opts.InDir)
	}
	if err := os.MkdirAll(opts.OutDir, 0o755); err != nil {
		return 0, err
	}
	journal := common.NewRunJournal(filepath.Join(opts.OutDir, "runs.jsonl"))
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 1
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	jobs := make(chan string)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				entry := processTape(path, opts)
				if entry.Failed() {
					common.Warnf("%s: %s", path, entry.Error)
					mu.Lock()
					failed++
					mu.Unlock()
				} else {
					common.Logf("%s: %d records, %d frames (%d flagged)", path, entry.Records, entry.Frames, entry.ErrorFrames)
				}
				if err := journal.Append(entry); err != nil {
					common.Warnf("journal: %v", err)
				}
			}
		}()
	}
	for _, t := range tapes {
		jobs <- t
	}
	close(jobs)
	wg.Wait()
	return failed, nil
}

func processTape(path string, opts batchOptions) common.RunEntry {
	format, _ := formatFromName(path)
	entry := common.RunEntry{File: path, Format: format.String()}
	ropts := alsep.ReaderOptions{Format: format}
	if opts.Tolerant {
		ropts.HeaderPolicy = alsep.HeaderTolerant
	}
	hash, size, err := common.Sha256OfFile(path)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Sha256 = hash
	entry.Bytes = size

	base := common.TapeBaseName(path)
	dir := filepath.Join(opts.OutDir, base)
	r, err := alsep.Open(path, ropts)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	w, err := export.NewCSVWriter(dir, base, format)
	if err != nil {
		r.Close()
		entry.Error = err.Error()
		return entry
	}
	res, err := export.Drain(r, w)
	r.Close()
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	entry.Records = int64(res.Batches)
	entry.Frames = int64(res.Frames)
	entry.ErrorFrames = int64(res.ErrorFrames)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	outputs := w.Paths()

	diagPath := filepath.Join(dir, "diagnostics.jsonl")
	accPath := filepath.Join(dir, "acceptance.json")
	if _, _, err := validateTape(path, ropts, validateOptions{
		RulesPath:         opts.RulesPath,
		CatalogPath:       opts.CatalogPath,
		DiagnosticsPath:   diagPath,
		AcceptancePath:    accPath,
		IncludeTimestamps: true,
	}); err != nil {
		entry.Error = err.Error()
		return entry
	}
	outputs = append(outputs, diagPath, accPath)

	m, err := manifest.Build(path, outputs)
	if err != nil {
		entry.Error = err.Error()
		return entry
	}
	manifestPath := filepath.Join(dir, "manifest.json")
	if err := manifest.Save(m, manifestPath); err != nil {
		entry.Error = err.Error()
		return entry
	}
	entry.Outputs = append(outputs, manifestPath)
	if len(opts.SigningKey) > 0 {
		sig, err := manifest.Sign(manifestPath, opts.SigningKey)
		if err != nil {
			entry.Error = err.Error()
			return entry
		}
		entry.Outputs = append(entry.Outputs, sig)
	}
	return entry
}

// writeJSONFile writes v indented to path, or to stdout when path is empty.
func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
