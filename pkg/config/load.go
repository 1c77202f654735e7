package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Options controls where settings are read from.
type Options struct {
	// RootDir overrides the root directory. Empty means the working directory
	// or SHARDCTL_ROOT_DIR.
	RootDir string

	// SettingsFile is an explicit settings file. Empty means shardctl.{yaml,toml,json}
	// in the root directory, if present.
	SettingsFile string

	// Flags maps setting keys (e.g. "log.level") to command-line flags.
	// A flag only takes effect when the user set it.
	Flags map[string]*pflag.Flag
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// setDefaults registers every key so environment lookups work for all of them.
func setDefaults(v *viper.Viper) {
	v.SetDefault("root_dir", ".")
	v.SetDefault("services_dir", DefaultServicesDir)
	v.SetDefault("manifest", DefaultManifest)
	v.SetDefault("policies", []string{})
	v.SetDefault("disabled_policies", []string{})
	v.SetDefault("compose.files", []string{DefaultComposeFile})
	v.SetDefault("compose.profile", "")
	v.SetDefault("compose.binary", "docker")
	v.SetDefault("compose.project", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.path", DefaultHistoryPath)
	v.SetDefault("metrics.file", "")
	v.SetDefault("metrics.listen", "")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.sampling_rate", 1.0)
	v.SetDefault("clone.backend", "git")
	v.SetDefault("clone.depth", 0)
	v.SetDefault("timeout", "0s")
	v.SetDefault("parallel", 1)
}

// Load reads settings. Precedence, highest first: flags, SHARDCTL_*
// environment variables, SHARDCTL_* entries in the root .env file, the
// settings file, defaults.
func Load(opts Options) (*Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, flag := range opts.Flags {
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag.Name, err)
		}
	}

	root := opts.RootDir
	if root == "" {
		root = v.GetString("root_dir")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}

	if opts.SettingsFile != "" {
		v.SetConfigFile(opts.SettingsFile)
	} else {
		v.SetConfigName(SettingsName)
		v.AddConfigPath(root)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.SettingsFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read settings: %w", err)
		}
	}

	dotenv, err := readDotEnv(filepath.Join(root, DotEnvFile))
	if err != nil {
		return nil, err
	}
	if overlay := dotEnvOverlay(v.AllKeys(), dotenv); len(overlay) > 0 {
		if err := v.MergeConfigMap(overlay); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", DotEnvFile, err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	s.RootDir = root
	s.DotEnv = dotenv
	s.SettingsFile = v.ConfigFileUsed()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// readDotEnv parses a .env file without touching the process environment.
// A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	env, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return env, nil
}

// dotEnvOverlay turns SHARDCTL_* entries of a .env file into a nested
// settings map. Variables already present in the real environment are left
// to viper's AutomaticEnv.
func dotEnvOverlay(keys []string, dotenv map[string]string) map[string]any {
	overlay := map[string]any{}
	sort.Strings(keys)
	for _, key := range keys {
		if key == "root_dir" {
			continue
		}
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		value, ok := dotenv[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}

		parts := strings.Split(key, ".")
		node := overlay
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}
	return overlay
}

// Validate checks the settings with struct tags.
func (s *Settings) Validate() error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid settings: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describeFieldError(fe))
	}
	return fmt.Errorf("invalid settings: %s", strings.Join(msgs, "; "))
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Settings.")
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
