package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Format identifies a manifest encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCUE  Format = "cue"
)

// FormatFromPath picks the format from the file extension. Unknown
// extensions fall back to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".cue":
		return FormatCUE
	default:
		return FormatYAML
	}
}

// Load reads and resolves the manifest at path. A missing or empty file is
// a valid manifest with zero entries so the caller can decide what to do.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		m := Empty()
		m.Source = path
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}
	return Parse(data, FormatFromPath(path), path)
}

// Parse decodes data in the given format. source is used in error messages.
func Parse(data []byte, format Format, source string) (*Manifest, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		m := Empty()
		m.Source = source
		return m, nil
	}

	var (
		doc *document
		err error
	)
	switch format {
	case FormatYAML:
		doc, err = decodeYAML(data)
	case FormatTOML:
		doc, err = decodeTOML(data)
	case FormatCUE:
		doc, err = decodeCUE(data, source)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidManifest, format)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	m, err := doc.resolve()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	m.Source = source
	return m, nil
}

// document is the format-independent view of a manifest file, with entries
// kept in the order they were written.
type document struct {
	repos  []repoEntry
	builds []buildEntry
}

type repoEntry struct {
	name  string
	url   string
	build *BuildConfig
}

type buildEntry struct {
	name  string
	build BuildConfig
}

// repoTable is the long form of a repositories entry.
type repoTable struct {
	URL   string       `yaml:"url" toml:"url" json:"url"`
	Build *BuildConfig `yaml:"build" toml:"build" json:"build,omitempty"`
}

func (d *document) addRepo(name, url string, build *BuildConfig) {
	d.repos = append(d.repos, repoEntry{name: name, url: strings.TrimSpace(url), build: build})
}

func (d *document) addBuild(name string, build BuildConfig) {
	d.builds = append(d.builds, buildEntry{name: name, build: build})
}

// resolve merges both sections. Any name defined twice, either inside one
// section or as a build section in both places, is rejected.
func (d *document) resolve() (*Manifest, error) {
	services := make([]Service, 0, len(d.repos)+len(d.builds))
	index := make(map[string]int)

	for _, r := range d.repos {
		if _, dup := index[r.name]; dup {
			return nil, fmt.Errorf("%w: %q is listed more than once under repositories", ErrDuplicateService, r.name)
		}
		if r.url == "" {
			return nil, fmt.Errorf("%w: repository URL for %q is empty", ErrInvalidManifest, r.name)
		}
		index[r.name] = len(services)
		services = append(services, Service{Name: r.name, RepositoryURL: r.url, Build: r.build})
	}

	seenBuild := make(map[string]bool)
	for _, b := range d.builds {
		if seenBuild[b.name] {
			return nil, fmt.Errorf("%w: %q is listed more than once under builds", ErrDuplicateService, b.name)
		}
		seenBuild[b.name] = true

		build := b.build
		i, ok := index[b.name]
		if !ok {
			index[b.name] = len(services)
			services = append(services, Service{Name: b.name, Build: &build})
			continue
		}
		if services[i].Build != nil {
			return nil, fmt.Errorf("%w: build configuration for %q is defined under both repositories and builds", ErrDuplicateService, b.name)
		}
		services[i].Build = &build
	}

	return New(services...)
}
