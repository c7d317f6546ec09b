package server

import (
	"fmt"
	"net/url"

	"github.com/gorilla/schema"

	"example.com/alsepgate/internal/alsep"
	"example.com/alsepgate/internal/report"
)

// Options configures server creation.
type Options struct {
	StorageDir  string
	Concurrency int
	// CacheBytes bounds the decode summary cache. Zero selects 64 MiB.
	CacheBytes int64
	// Lang is the default report language.
	Lang         string
	FontPath     string
	CatalogPath  string
	RulePackPath string
}

const defaultCacheBytes = 64 << 20

// TapeQuery holds the query parameters shared by the tape endpoints.
type TapeQuery struct {
	Artifact string `schema:"artifact"`
	Format   string `schema:"format"`
	Tolerant bool   `schema:"tolerant"`
	Package  int    `schema:"package"`
	Year     int    `schema:"year"`
	Carry    bool   `schema:"carry"`
	Stream   bool   `schema:"stream"`
	Lang     string `schema:"lang"`
	Kind     string `schema:"kind"`
	FileID   int    `schema:"id"`
	LSG      bool   `schema:"lsg"`
}

func newDecoder() *schema.Decoder {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(false)
	return decoder
}

var queryDecoder = newDecoder()

func decodeQuery(v url.Values) (TapeQuery, error) {
	var q TapeQuery
	if err := queryDecoder.Decode(&q, v); err != nil {
		return q, err
	}
	if q.Artifact == "" {
		return q, fmt.Errorf("artifact required")
	}
	return q, nil
}

// ReaderOptions converts the query into tape reader settings.
func (q TapeQuery) ReaderOptions() (alsep.ReaderOptions, error) {
	var opts alsep.ReaderOptions
	format, err := alsep.ParseFormat(q.Format)
	if err != nil {
		return opts, err
	}
	opts.Format = format
	if q.Tolerant {
		opts.HeaderPolicy = alsep.HeaderTolerant
	}
	if q.Package != 0 {
		p := alsep.Package(q.Package)
		if !p.Valid() {
			return opts, fmt.Errorf("invalid package %d", q.Package)
		}
		opts.Package = p
	}
	opts.YearOverride = q.Year
	opts.Stitch.CarryAcrossRecords = q.Carry
	return opts, nil
}

func (q TapeQuery) language(fallback string) (report.Language, error) {
	if q.Lang != "" {
		return report.ParseLanguage(q.Lang)
	}
	if fallback != "" {
		return report.ParseLanguage(fallback)
	}
	return report.LangEnglish, nil
}
