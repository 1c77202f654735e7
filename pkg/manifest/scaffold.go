package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrManifestExists is returned by Scaffold when the target already exists
// and force is not set.
var ErrManifestExists = errors.New("manifest already exists")

// ExampleManifest is the minimal manifest written by Scaffold.
const ExampleManifest = `# Service repositories configuration
# Map service names to their git repository URLs

repositories:
  service-1: https://github.com/your-org/service-1.git
  service-2:
    url: https://github.com/your-org/service-2.git
    build:
      build_command: make build
      docker_build_command: docker build -t service-2 .
      environment: development
  # Add more services as needed

# Build sections may also live here, keyed by service name.
# builds:
#   service-1:
#     build_command: ./gradlew build
#     working_directory: service-1
`

// Scaffold writes ExampleManifest to path. An existing file is only
// overwritten when force is true.
func Scaffold(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s", ErrManifestExists, path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, []byte(ExampleManifest), 0o644); err != nil {
		return fmt.Errorf("failed to write manifest %s: %w", path, err)
	}
	return nil
}
