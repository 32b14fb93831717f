package catalog

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/WessleyAI/wessley-upkeep/engine/domain"
)

//go:embed catalog.yaml
var embedded []byte

// document is the on-disk layout. Profiles stay a node so the mapping order
// of the file becomes the catalog order.
type document struct {
	Profiles yaml.Node `yaml:"profiles"`
}

// Decode parses a catalog document. JSON is accepted as well since it is a
// subset of YAML.
func Decode(data []byte) ([]domain.MaintenanceProfile, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	node := &doc.Profiles
	if node.Kind == 0 {
		return nil, domain.ErrCatalogEmpty
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("catalog: decode: profiles must be a mapping (line %d)", node.Line)
	}

	out := make([]domain.MaintenanceProfile, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var p domain.MaintenanceProfile
		if err := val.Decode(&p); err != nil {
			return nil, fmt.Errorf("catalog: decode profile %q: %w", key.Value, err)
		}
		p.ID = key.Value
		out = append(out, p)
	}
	return out, nil
}

// Parse decodes and builds a catalog.
func Parse(data []byte, logger *slog.Logger) (*Catalog, error) {
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return New(raw, logger)
}

// Default builds the catalog compiled into the binary.
func Default(logger *slog.Logger) (*Catalog, error) {
	return Parse(embedded, logger)
}

// LoadFile builds a catalog from a .yaml, .yml or .json file.
func LoadFile(path string, logger *slog.Logger) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil, fmt.Errorf("catalog: unsupported file type %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data, logger)
}

// Loader produces a fresh catalog on demand.
type Loader func() (*Catalog, error)

// SourceLoader loads from path, or from the embedded catalog when path is
// empty.
func SourceLoader(path string, logger *slog.Logger) Loader {
	if path == "" {
		return func() (*Catalog, error) { return Default(logger) }
	}
	return func() (*Catalog, error) { return LoadFile(path, logger) }
}
