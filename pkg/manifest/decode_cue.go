package manifest

import (
	"fmt"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
)

// decodeCUE evaluates a single CUE file. Repeated fields unify in CUE, so
// duplicates can only be detected across the two sections.
func decodeCUE(data []byte, source string) (*document, error) {
	ctx := cuecontext.New()
	val := ctx.CompileBytes(data, cue.Filename(source))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidManifest, errors.Details(err, nil))
	}

	if err := checkCUEFields(val, []string{"repositories", "builds"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
	}

	doc := &document{}

	repos := val.LookupPath(cue.ParsePath("repositories"))
	if repos.Exists() {
		iter, err := repos.Fields()
		if err != nil {
			return nil, fmt.Errorf("%w: repositories: %v", ErrInvalidManifest, err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			v := iter.Value()

			switch v.Kind() {
			case cue.StringKind:
				url, err := v.String()
				if err != nil {
					return nil, fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, name, err)
				}
				doc.addRepo(name, url, nil)
			case cue.StructKind:
				if err := checkCUEFields(v, repoKeys); err != nil {
					return nil, fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, name, err)
				}
				if build := v.LookupPath(cue.ParsePath("build")); build.Exists() && build.Kind() == cue.StructKind {
					if err := checkCUEFields(build, buildKeys); err != nil {
						return nil, fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, name, err)
					}
				}
				var t repoTable
				if err := v.Decode(&t); err != nil {
					return nil, fmt.Errorf("%w: repository %q: %v", ErrInvalidManifest, name, err)
				}
				doc.addRepo(name, t.URL, t.Build)
			default:
				return nil, fmt.Errorf("%w: repository %q must be a URL or a struct", ErrInvalidManifest, name)
			}
		}
	}

	builds := val.LookupPath(cue.ParsePath("builds"))
	if builds.Exists() {
		iter, err := builds.Fields()
		if err != nil {
			return nil, fmt.Errorf("%w: builds: %v", ErrInvalidManifest, err)
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			if err := checkCUEFields(iter.Value(), buildKeys); err != nil {
				return nil, fmt.Errorf("%w: build for %q: %v", ErrInvalidManifest, name, err)
			}
			var b BuildConfig
			if err := iter.Value().Decode(&b); err != nil {
				return nil, fmt.Errorf("%w: build for %q: %v", ErrInvalidManifest, name, err)
			}
			doc.addBuild(name, b)
		}
	}

	return doc, nil
}

func checkCUEFields(v cue.Value, allowed []string) error {
	iter, err := v.Fields()
	if err != nil {
		return err
	}
	for iter.Next() {
		if name := iter.Selector().Unquoted(); !slices.Contains(allowed, name) {
			return fmt.Errorf("unknown field %q", name)
		}
	}
	return nil
}
