package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

//go:embed default_catalog.json
var defaultCatalog []byte

// Default returns the built-in catalog for the XA network.
func Default() (*Store, error) {
	var file JSONFile
	if err := json.Unmarshal(defaultCatalog, &file); err != nil {
		return nil, fmt.Errorf("decode default catalog: %w", err)
	}
	return FromJSON(file)
}

func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file JSONFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return FromJSON(file)
}

// EnsureLoaded loads path, or the built-in catalog when path is empty.
func EnsureLoaded(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("catalog path %s is a directory", path)
	}
	store, err := Load(path)
	if err != nil {
		return nil, err
	}
	if store.IsEmpty() {
		return nil, errors.New("catalog has no channels")
	}
	return store, nil
}
