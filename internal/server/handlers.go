package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/golang/groupcache"
	"github.com/google/uuid"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/catalog"
	"example.com/alsepgate/internal/common"
	"example.com/alsepgate/internal/export"
	"example.com/alsepgate/internal/manifest"
	"example.com/alsepgate/internal/report"
	"example.com/alsepgate/internal/rules"
	"example.com/alsepgate/internal/summary"
)

// Server coordinates HTTP handlers and manages temporary artifacts produced by
// decode, validation and export requests.
type Server struct {
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string
	jobs       chan struct{}
	lang       string
	fontPath   string
	catalog    *catalog.Store
	rulePack   rules.RulePack
	cache      *groupcache.Group
	metrics    *serverMetrics
}

// Artifact represents a file generated or stored by the daemon.
type Artifact struct {
	ID          string
	Path        string
	Name        string
	ContentType string
	Size        int64
	Kind        string
}

// ArtifactRef is the public representation returned in API responses.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ArtifactStore keeps track of generated artifacts for later download.
type ArtifactStore struct {
	mu      sync.RWMutex
	entries map[string]Artifact
}

// NewServer constructs a Server rooted at a temporary workspace directory.
func NewServer(opts Options) (*Server, error) {
	storageDir := opts.StorageDir
	if storageDir == "" {
		storageDir = os.TempDir()
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, err
	}
	cat, err := catalog.EnsureLoaded(opts.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	rp, err := loadRulePack(opts.RulePackPath)
	if err != nil {
		return nil, fmt.Errorf("load rule pack: %w", err)
	}
	if opts.Lang != "" {
		if _, err := report.ParseLanguage(opts.Lang); err != nil {
			return nil, err
		}
	}
	workDir, err := os.MkdirTemp(storageDir, "alsepd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	cacheBytes := opts.CacheBytes
	if cacheBytes <= 0 {
		cacheBytes = defaultCacheBytes
	}
	s := &Server{
		artifacts:  &ArtifactStore{entries: make(map[string]Artifact)},
		workDir:    workDir,
		uploadsDir: uploadsDir,
		jobs:       make(chan struct{}, concurrency),
		lang:       opts.Lang,
		fontPath:   opts.FontPath,
		catalog:    cat,
		rulePack:   rp,
		metrics:    newServerMetrics(),
	}
	// Group names are process-wide.
	s.cache = groupcache.NewGroup("decode-"+uuid.NewString(), cacheBytes, groupcache.GetterFunc(
		func(ctx groupcache.Context, key string, dest groupcache.Sink) error {
			s.metrics.cacheMisses.Inc()
			q, err := parseCacheKey(key)
			if err != nil {
				return err
			}
			sum, err := s.decodeSummary(q)
			if err != nil {
				return err
			}
			b, err := json.Marshal(sum)
			if err != nil {
				return err
			}
			return dest.SetBytes(b)
		}))
	return s, nil
}

func loadRulePack(path string) (rules.RulePack, error) {
	if strings.TrimSpace(path) == "" {
		return rules.DefaultRulePack()
	}
	return rules.LoadRulePack(path)
}

// Close removes any temporary state associated with the server.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

// acquire blocks until a decode slot is free or ctx is done.
func (s *Server) acquire(ctx context.Context) (func(), error) {
	select {
	case s.jobs <- struct{}{}:
		return func() { <-s.jobs }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	f.Close()
	return name, nil
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	art := Artifact{
		ID:          uuid.NewString(),
		Path:        path,
		Name:        displayName,
		ContentType: contentType,
		Size:        info.Size(),
		Kind:        kind,
	}
	if art.Name == "" {
		art.Name = filepath.Base(path)
	}
	if art.ContentType == "" {
		art.ContentType = guessContentType(art.Name)
	}
	s.artifacts.mu.Lock()
	s.artifacts.entries[art.ID] = art
	s.artifacts.mu.Unlock()
	return art, nil
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	s.artifacts.mu.RLock()
	art, ok := s.artifacts.entries[id]
	s.artifacts.mu.RUnlock()
	return art, ok
}

// tapeRequest is a decoded TapeQuery bound to the uploaded tape it names.
type tapeRequest struct {
	query TapeQuery
	tape  Artifact
	opts  alsep.ReaderOptions
}

func (s *Server) tapeRequest(r *http.Request) (tapeRequest, error) {
	q, err := decodeQuery(r.URL.Query())
	if err != nil {
		return tapeRequest{}, err
	}
	return s.bindQuery(q)
}

func (s *Server) bindQuery(q TapeQuery) (tapeRequest, error) {
	art, ok := s.getArtifact(q.Artifact)
	if !ok {
		return tapeRequest{}, fmt.Errorf("unknown artifact %q", q.Artifact)
	}
	opts, err := q.ReaderOptions()
	if err != nil {
		return tapeRequest{}, err
	}
	return tapeRequest{query: q, tape: art, opts: opts}, nil
}

// cacheKey names a decode summary by artifact and reader settings only.
func cacheKey(q TapeQuery) string {
	v := url.Values{}
	v.Set("format", strings.ToLower(q.Format))
	v.Set("tolerant", strconv.FormatBool(q.Tolerant))
	v.Set("package", strconv.Itoa(q.Package))
	v.Set("year", strconv.Itoa(q.Year))
	v.Set("carry", strconv.FormatBool(q.Carry))
	return q.Artifact + "?" + v.Encode()
}

func parseCacheKey(key string) (TapeQuery, error) {
	id, rest, ok := strings.Cut(key, "?")
	if !ok {
		return TapeQuery{}, fmt.Errorf("malformed cache key %q", key)
	}
	v, err := url.ParseQuery(rest)
	if err != nil {
		return TapeQuery{}, err
	}
	v.Set("artifact", id)
	return decodeQuery(v)
}

func (s *Server) decodeSummary(q TapeQuery) (summary.Summary, error) {
	req, err := s.bindQuery(q)
	if err != nil {
		return summary.Summary{}, err
	}
	sum, err := summary.Tape(req.tape.Path, req.opts, summary.DefaultMaxSamples)
	if err != nil {
		return summary.Summary{}, err
	}
	sum.File = req.tape.Name
	s.metrics.countFrames(req.opts.Format.String(), sum.Frames, sum.ErrorFrames)
	return sum, nil
}

func (s *Server) cachedSummary(ctx context.Context, q TapeQuery) (summary.Summary, error) {
	var sum summary.Summary
	var b []byte
	s.metrics.cacheLookups.Inc()
	if err := s.cache.Get(ctx, cacheKey(q), groupcache.AllocatingByteSliceSink(&b)); err != nil {
		return sum, err
	}
	err := json.Unmarshal(b, &sum)
	return sum, err
}

func (s *Server) handleDecode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := s.tapeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()
	sum, err := s.cachedSummary(r.Context(), req.query)
	if err != nil {
		http.Error(w, fmt.Sprintf("decode: %v", err), http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := s.tapeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	lang, err := req.query.language(s.lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		RulePack          *rules.RulePack `json:"rulePack"`
		IncludeTimestamps *bool           `json:"includeTimestamps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	rp := s.rulePack
	if body.RulePack != nil && len(body.RulePack.Rules) > 0 {
		rp = *body.RulePack
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()

	engine := rules.NewEngine(rp)
	engine.RegisterBuiltins()
	includeTimestamps := true
	if body.IncludeTimestamps != nil {
		includeTimestamps = *body.IncludeTimestamps
	}
	engine.SetConfigValue("diag.include_timestamps", includeTimestamps)
	ctx := &rules.Context{
		InputFile: req.tape.Path,
		Format:    req.opts.Format,
		Profile:   rp.Profile,
		Options:   req.opts,
		Catalog:   s.catalog,
	}

	if req.query.Stream {
		stream := NewValidationStream(w)
		diags, err := engine.Eval(ctx)
		if err != nil {
			_ = stream.WriteError(err)
			return
		}
		for _, d := range diags {
			if err := stream.WriteDiagnostic(d); err != nil {
				common.Warnf("stream diagnostics: %v", err)
				return
			}
		}
		rep, refs, err := s.validationArtifacts(r.Context(), req, engine, lang)
		if err != nil {
			_ = stream.WriteError(err)
			return
		}
		if err := stream.WriteAcceptance(rep, refs); err != nil {
			common.Warnf("stream acceptance: %v", err)
		}
		return
	}

	diags, err := engine.Eval(ctx)
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusUnprocessableEntity)
		return
	}
	rep, refs, err := s.validationArtifacts(r.Context(), req, engine, lang)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Acceptance  rules.AcceptanceReport `json:"acceptance"`
		Diagnostics int                    `json:"diagnostics"`
		Artifacts   []ArtifactRef          `json:"artifacts"`
	}{
		Acceptance:  rep,
		Diagnostics: len(diags),
		Artifacts:   refs,
	})
}

// validationArtifacts writes the diagnostics, the acceptance JSON and the
// PDF report of an evaluated engine and registers them for download.
func (s *Server) validationArtifacts(ctx context.Context, req tapeRequest, engine *rules.Engine, lang report.Language) (rules.AcceptanceReport, []ArtifactRef, error) {
	rep := engine.MakeAcceptance()
	rep.Summary.File = req.tape.Name

	diagPath, err := s.tempPath("diagnostics-*.ndjson")
	if err != nil {
		return rep, nil, fmt.Errorf("diagnostics temp: %w", err)
	}
	if err := engine.WriteDiagnosticsNDJSON(diagPath); err != nil {
		return rep, nil, fmt.Errorf("write diagnostics: %w", err)
	}
	accPath, err := s.tempPath("acceptance-*.json")
	if err != nil {
		return rep, nil, fmt.Errorf("acceptance temp: %w", err)
	}
	if err := report.SaveAcceptanceJSON(rep, accPath); err != nil {
		return rep, nil, fmt.Errorf("write acceptance: %w", err)
	}

	hash, _, err := common.Sha256OfFile(req.tape.Path)
	if err != nil {
		return rep, nil, fmt.Errorf("hash tape: %w", err)
	}
	pdfOpts := report.PDFOptions{Lang: lang, TapeSHA256: hash, FontPath: s.fontPath}
	if sum, err := s.cachedSummary(ctx, req.query); err == nil {
		pdfOpts.Summary = &sum
	} else {
		common.Warnf("channel summary for %s: %v", req.tape.Name, err)
	}
	pdfPath, err := s.tempPath("acceptance-*.pdf")
	if err != nil {
		return rep, nil, fmt.Errorf("acceptance pdf temp: %w", err)
	}
	if err := report.SaveAcceptancePDF(rep, pdfPath, pdfOpts); err != nil {
		return rep, nil, fmt.Errorf("write acceptance pdf: %w", err)
	}

	var refs []ArtifactRef
	for _, a := range []struct{ path, name, ctype, kind string }{
		{diagPath, "diagnostics.ndjson", "application/x-ndjson", "diagnostics"},
		{accPath, "acceptance_report.json", "application/json", "acceptance"},
		{pdfPath, "acceptance_report.pdf", "application/pdf", "acceptance"},
	} {
		art, err := s.addArtifact(a.path, a.name, a.ctype, a.kind)
		if err != nil {
			return rep, nil, fmt.Errorf("register %s: %w", a.name, err)
		}
		refs = append(refs, toRef(art))
	}
	return rep, refs, nil
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	req, err := s.tapeRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	kind := strings.ToLower(req.query.Kind)
	switch kind {
	case "csv", "mseed", "pgcopy":
	default:
		http.Error(w, fmt.Sprintf("unknown export kind %q", req.query.Kind), http.StatusBadRequest)
		return
	}
	release, err := s.acquire(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer release()

	reader, err := alsep.Open(req.tape.Path, req.opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer reader.Close()

	var (
		res  export.DrainResult
		refs []ArtifactRef
	)
	base := common.TapeBaseName(req.tape.Name)
	switch kind {
	case "csv":
		res, refs, err = s.exportCSV(reader, base, req.opts.Format)
	case "mseed":
		res, refs, err = s.exportFile(reader, base+".mseed", "application/vnd.fdsn.mseed", func(f io.Writer) (export.BatchWriter, func() error) {
			mw := export.NewMSeedWriter(f, s.catalog)
			return mw, mw.Close
		})
	case "pgcopy":
		opts := export.CopyOptions{FileID: req.query.FileID, LSG: req.query.LSG}
		res, refs, err = s.exportFile(reader, base+".sql", "text/plain", func(f io.Writer) (export.BatchWriter, func() error) {
			cw := export.NewCopyWriter(f, opts)
			return cw, cw.Flush
		})
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("export %s: %v", kind, err), http.StatusUnprocessableEntity)
		return
	}
	s.metrics.countFrames(req.opts.Format.String(), res.Frames, res.ErrorFrames)
	resp := struct {
		Batches     int           `json:"batches"`
		Frames      int           `json:"frames"`
		ErrorFrames int           `json:"errorFrames"`
		Truncated   string        `json:"truncated,omitempty"`
		Artifacts   []ArtifactRef `json:"artifacts"`
	}{
		Batches:     res.Batches,
		Frames:      res.Frames,
		ErrorFrames: res.ErrorFrames,
		Artifacts:   refs,
	}
	if res.Truncated != nil {
		resp.Truncated = res.Truncated.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) exportCSV(src export.BatchSource, base string, format alsep.Format) (export.DrainResult, []ArtifactRef, error) {
	dir, err := os.MkdirTemp(s.workDir, "csv-")
	if err != nil {
		return export.DrainResult{}, nil, err
	}
	cw, err := export.NewCSVWriter(dir, base, format)
	if err != nil {
		return export.DrainResult{}, nil, err
	}
	res, err := export.Drain(src, cw)
	if cerr := cw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, nil, err
	}
	var refs []ArtifactRef
	for _, p := range cw.Paths() {
		art, err := s.addArtifact(p, "", "text/csv", "csv")
		if err != nil {
			return res, nil, err
		}
		refs = append(refs, toRef(art))
	}
	return res, refs, nil
}

// exportFile drains src into a single artifact file produced by newWriter.
func (s *Server) exportFile(src export.BatchSource, name, ctype string, newWriter func(io.Writer) (export.BatchWriter, func() error)) (export.DrainResult, []ArtifactRef, error) {
	path, err := s.tempPath("export-*" + filepath.Ext(name))
	if err != nil {
		return export.DrainResult{}, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return export.DrainResult{}, nil, err
	}
	bw, finish := newWriter(f)
	res, err := export.Drain(src, bw)
	if ferr := finish(); err == nil {
		err = ferr
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return res, nil, err
	}
	art, err := s.addArtifact(path, name, ctype, "export")
	if err != nil {
		return res, nil, err
	}
	return res, []ArtifactRef{toRef(art)}, nil
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Tape   string   `json:"tape"`
		Inputs []string `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if req.Tape == "" && len(req.Inputs) == 0 {
		http.Error(w, "tape or inputs required", http.StatusBadRequest)
		return
	}
	var tape string
	if req.Tape != "" {
		art, ok := s.getArtifact(req.Tape)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown artifact %q", req.Tape), http.StatusBadRequest)
			return
		}
		tape = art.Path
	}
	var paths []string
	for _, id := range req.Inputs {
		art, ok := s.getArtifact(id)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown artifact %q", id), http.StatusBadRequest)
			return
		}
		paths = append(paths, art.Path)
	}
	m, err := manifest.Build(tape, paths)
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	outPath, err := s.tempPath("manifest-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("manifest temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := manifest.Save(m, outPath); err != nil {
		http.Error(w, fmt.Sprintf("write manifest: %v", err), http.StatusInternalServerError)
		return
	}
	art, err := s.addArtifact(outPath, "manifest.json", "application/json", "manifest")
	if err != nil {
		http.Error(w, fmt.Sprintf("register manifest: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Manifest manifest.Manifest `json:"manifest"`
		Artifact ArtifactRef       `json:"artifact"`
	}{
		Manifest: m,
		Artifact: toRef(art),
	})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.listArtifacts())
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", art.Name))
	io.Copy(w, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"artifacts": len(s.listArtifacts()),
	})
}

func toRef(art Artifact) ArtifactRef {
	return ArtifactRef{
		ID:          art.ID,
		Name:        art.Name,
		ContentType: art.ContentType,
		Size:        art.Size,
		Kind:        art.Kind,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func guessContentType(name string) string {
	name = strings.TrimSuffix(strings.ToLower(name), ".zst")
	switch filepath.Ext(name) {
	case ".json":
		return "application/json"
	case ".ndjson", ".jsonl":
		return "application/x-ndjson"
	case ".pdf":
		return "application/pdf"
	case ".csv":
		return "text/csv"
	case ".sql", ".txt":
		return "text/plain"
	case ".mseed":
		return "application/vnd.fdsn.mseed"
	default:
		return "application/octet-stream"
	}
}

func (s *Server) listArtifacts() []ArtifactRef {
	s.artifacts.mu.RLock()
	refs := make([]ArtifactRef, 0, len(s.artifacts.entries))
	for _, art := range s.artifacts.entries {
		refs = append(refs, toRef(art))
	}
	s.artifacts.mu.RUnlock()
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs
}
