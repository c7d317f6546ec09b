package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/alsepgate/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Tape      *Item     `json:"tape,omitempty"`
	Items     []Item    `json:"items"`
}

// Build hashes tape (when non-empty) and every output path.
func Build(tape string, paths []string) (Manifest, error) {
	m := Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	if tape != "" {
		it, err := item(tape)
		if err != nil {
			return m, err
		}
		it.Type = "tape"
		m.Tape = &it
	}
	for _, p := range paths {
		it, err := item(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, it)
	}
	return m, nil
}

func item(p string) (Item, error) {
	hex, sz, err := common.Sha256OfFile(p)
	if err != nil {
		return Item{}, err
	}
	return Item{Path: p, Size: sz, Sha256: hex, Type: ItemType(p)}, nil
}

// ItemType classifies an output file by its name.
func ItemType(p string) string {
	name := strings.ToLower(filepath.Base(p))
	switch {
	case strings.HasSuffix(name, "_meta.csv"):
		return "meta-csv"
	case strings.HasSuffix(name, ".csv"):
		return "csv"
	case strings.HasSuffix(name, ".copy"), strings.HasSuffix(name, ".sql"):
		return "pgcopy"
	case strings.HasSuffix(name, ".mseed"), strings.HasSuffix(name, ".ms"):
		return "mseed"
	case strings.HasSuffix(name, ".ndjson"):
		return "diagnostics"
	case strings.HasSuffix(name, ".json"):
		return "json"
	case strings.HasSuffix(name, ".jws"):
		return "signature"
	case strings.HasSuffix(name, ".pdf"):
		return "pdf"
	case strings.HasSuffix(name, ".zst"):
		return "tape"
	case strings.HasPrefix(name, "pse."), strings.HasPrefix(name, "wtn."), strings.HasPrefix(name, "wth."):
		return "tape"
	}
	return "other"
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify rehashes every item and returns the paths whose digest or size
// no longer match.
func Verify(m Manifest) ([]string, error) {
	var bad []string
	items := m.Items
	if m.Tape != nil {
		items = append([]Item{*m.Tape}, items...)
	}
	for _, it := range items {
		hex, sz, err := common.Sha256OfFile(it.Path)
		if err != nil {
			if os.IsNotExist(err) {
				bad = append(bad, it.Path)
				continue
			}
			return bad, err
		}
		if hex != it.Sha256 || sz != it.Size {
			bad = append(bad, it.Path)
		}
	}
	return bad, nil
}
