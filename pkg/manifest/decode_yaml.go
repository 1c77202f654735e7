package manifest

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// decodeYAML walks the node tree instead of unmarshalling into maps so that
// file order survives and repeated keys can be reported.
func decodeYAML(data []byte) (*document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	doc := &document{}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return doc, nil
	}

	top := root.Content[0]
	if isNull(top) {
		return doc, nil
	}
	if top.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: line %d: top level must be a mapping", ErrInvalidManifest, top.Line)
	}

	seen := make(map[string]bool)
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i], top.Content[i+1]
		if seen[key.Value] {
			return nil, fmt.Errorf("%w: line %d: section %q defined twice", ErrInvalidManifest, key.Line, key.Value)
		}
		seen[key.Value] = true

		var err error
		switch key.Value {
		case "repositories":
			err = decodeYAMLRepositories(doc, val)
		case "builds":
			err = decodeYAMLBuilds(doc, val)
		default:
			err = fmt.Errorf("%w: line %d: unknown section %q", ErrInvalidManifest, key.Line, key.Value)
		}
		if err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func decodeYAMLRepositories(doc *document, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: repositories must be a mapping", ErrInvalidManifest, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		switch val.Kind {
		case yaml.ScalarNode:
			if isNull(val) {
				doc.addRepo(key.Value, "", nil)
				continue
			}
			doc.addRepo(key.Value, val.Value, nil)
		case yaml.MappingNode:
			if err := checkYAMLKeys(val, repoKeys); err != nil {
				return fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, key.Value, err)
			}
			if build := yamlValue(val, "build"); build != nil && build.Kind == yaml.MappingNode {
				if err := checkYAMLKeys(build, buildKeys); err != nil {
					return fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, key.Value, err)
				}
			}
			var t repoTable
			if err := val.Decode(&t); err != nil {
				return fmt.Errorf("%w: line %d: repository %q: %v", ErrInvalidManifest, val.Line, key.Value, err)
			}
			doc.addRepo(key.Value, t.URL, t.Build)
		default:
			return fmt.Errorf("%w: line %d: repository %q must be a URL or a mapping", ErrInvalidManifest, val.Line, key.Value)
		}
	}
	return nil
}

func decodeYAMLBuilds(doc *document, node *yaml.Node) error {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: line %d: builds must be a mapping", ErrInvalidManifest, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		var b BuildConfig
		if !isNull(val) {
			if val.Kind != yaml.MappingNode {
				return fmt.Errorf("%w: line %d: build for %q must be a mapping", ErrInvalidManifest, val.Line, key.Value)
			}
			if err := checkYAMLKeys(val, buildKeys); err != nil {
				return fmt.Errorf("%w: build for %q: %v", ErrInvalidManifest, key.Value, err)
			}
			if err := val.Decode(&b); err != nil {
				return fmt.Errorf("%w: line %d: build for %q: %v", ErrInvalidManifest, val.Line, key.Value, err)
			}
		}
		doc.addBuild(key.Value, b)
	}
	return nil
}

var (
	repoKeys  = []string{"url", "build"}
	buildKeys = []string{"build_command", "docker_build_command", "working_directory", "environment"}
)

// checkYAMLKeys rejects keys of a mapping node that are not in allowed.
// yaml.v3 would otherwise drop them silently.
func checkYAMLKeys(node *yaml.Node, allowed []string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if !slices.Contains(allowed, key.Value) {
			return fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
	}
	return nil
}

func yamlValue(node *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == name {
			return node.Content[i+1]
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.Tag == "!!null"
}
