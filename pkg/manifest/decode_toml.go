package manifest

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type tomlFile struct {
	Repositories map[string]toml.Primitive `toml:"repositories"`
	Builds       map[string]toml.Primitive `toml:"builds"`
}

// decodeTOML relies on MetaData.Keys for file order. TOML itself forbids
// redefining a key, so the decoder already rejects repeats inside a table.
func decodeTOML(data []byte) (*document, error) {
	var raw tomlFile
	md, err := toml.Decode(string(data), &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	doc := &document{}
	for _, name := range orderedTOMLKeys(md, "repositories") {
		prim := raw.Repositories[name]

		var url string
		if err := md.PrimitiveDecode(prim, &url); err == nil {
			doc.addRepo(name, url, nil)
			continue
		}

		var t repoTable
		if err := md.PrimitiveDecode(prim, &t); err != nil {
			return nil, fmt.Errorf("%w: repository %q must be a URL or a table: %v", ErrInvalidManifest, name, err)
		}
		doc.addRepo(name, t.URL, t.Build)
	}

	for _, name := range orderedTOMLKeys(md, "builds") {
		var b BuildConfig
		if err := md.PrimitiveDecode(raw.Builds[name], &b); err != nil {
			return nil, fmt.Errorf("%w: build for %q: %v", ErrInvalidManifest, name, err)
		}
		doc.addBuild(name, b)
	}

	// Keys behind a Primitive count as undecoded until PrimitiveDecode
	// reaches them, so whatever is left here matched no field.
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys: %s", ErrInvalidManifest, strings.Join(keys, ", "))
	}

	return doc, nil
}

// orderedTOMLKeys returns the direct children of section in the order they
// appear in the file.
func orderedTOMLKeys(md toml.MetaData, section string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, key := range md.Keys() {
		if len(key) != 2 || key[0] != section || seen[key[1]] {
			continue
		}
		seen[key[1]] = true
		names = append(names, key[1])
	}
	return names
}
