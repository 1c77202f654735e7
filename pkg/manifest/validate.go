package manifest

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrDuplicateService is returned when a service name is defined twice.
	ErrDuplicateService = errors.New("duplicate service")

	// ErrInvalidManifest is returned for structurally malformed manifests.
	ErrInvalidManifest = errors.New("invalid manifest")
)

// scpLike matches "user@host:path" repository specs.
var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:.+$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		_ = validate.RegisterValidation("servicename", func(fl validator.FieldLevel) bool {
			return ValidServiceName(fl.Field().String())
		})
		_ = validate.RegisterValidation("repourl", func(fl validator.FieldLevel) bool {
			return ValidRepositoryURL(fl.Field().String())
		})
		_ = validate.RegisterValidation("subpath", func(fl validator.FieldLevel) bool {
			return ValidSubpath(fl.Field().String())
		})
	})
	return validate
}

// ValidServiceName reports whether name can be used as a single directory
// segment below the services root.
func ValidServiceName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, "-") {
		return false
	}
	return filepath.IsLocal(name)
}

// ValidRepositoryURL accepts scheme URLs, scp-like specs and filesystem paths.
// Anything starting with "-" is refused so it cannot be read as a git option.
func ValidRepositoryURL(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "-") {
		return false
	}
	if scpLike.MatchString(raw) {
		return true
	}
	if u, err := url.Parse(raw); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
		return u.Host != "" || u.Scheme == "file"
	}
	return filepath.IsAbs(raw) || strings.HasPrefix(raw, "./") || strings.HasPrefix(raw, "../")
}

// ValidSubpath reports whether p stays inside the directory it is joined to.
func ValidSubpath(p string) bool {
	if p == "" {
		return true
	}
	return filepath.IsLocal(filepath.FromSlash(p))
}

func validateService(svc Service) error {
	err := getValidator().Struct(svc)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: service %q: %v", ErrInvalidManifest, svc.Name, err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("%w: service %q: %s", ErrInvalidManifest, svc.Name, strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "servicename":
		return fmt.Sprintf("name %q must be a single path segment", fe.Value())
	case "repourl":
		return fmt.Sprintf("repository URL %q is not a valid clone source", fe.Value())
	case "subpath":
		return fmt.Sprintf("working_directory %q escapes the services root", fe.Value())
	default:
		return fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	}
}
