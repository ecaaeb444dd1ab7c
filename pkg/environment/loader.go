package environment

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Common errors for environment loading/saving.
var (
	ErrFileNotFound     = errors.New("environment file not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrIsDirectory      = errors.New("path is a directory, not a file")
	ErrEmptyFile        = errors.New("environment file is empty")
	ErrParse            = errors.New("invalid environment document")
	ErrValidation       = errors.New("environment validation failed")
	ErrNoMatches        = errors.New("no environment files match pattern")
)

// LoadFromFile reads an Environment from a JSON or YAML file, normalizes and
// validates it. The format is chosen by extension (.yaml, .yml for YAML,
// otherwise JSON).
func LoadFromFile(path string) (*Environment, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrIsDirectory, path)
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	if isYAML(path) {
		return ParseYAML(data)
	}
	return ParseJSON(data)
}

// LoadGlob loads every environment matching pattern, sorted by path.
// Patterns support ** for recursive matching.
func LoadGlob(pattern string) ([]*Environment, []string, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("expanding glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoMatches, pattern)
	}
	sort.Strings(matches)

	envs := make([]*Environment, 0, len(matches))
	for _, m := range matches {
		env, err := LoadFromFile(m)
		if err != nil {
			return nil, nil, fmt.Errorf("loading %s: %w", m, err)
		}
		envs = append(envs, env)
	}
	return envs, matches, nil
}

// ParseJSON parses JSON bytes into a normalized, validated Environment.
func ParseJSON(data []byte) (*Environment, error) {
	var env Environment
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return finish(&env)
}

// ParseYAML parses YAML bytes into a normalized, validated Environment.
func ParseYAML(data []byte) (*Environment, error) {
	var env Environment
	if err := yaml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return finish(&env)
}

func finish(env *Environment) (*Environment, error) {
	env.Normalize()
	if err := env.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return env, nil
}

// ToJSON marshals an Environment to indented JSON.
func ToJSON(env *Environment) ([]byte, error) {
	if env == nil {
		return nil, errors.New("environment cannot be nil")
	}
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ToYAML marshals an Environment to YAML.
func ToYAML(env *Environment) ([]byte, error) {
	if env == nil {
		return nil, errors.New("environment cannot be nil")
	}
	data, err := yaml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to YAML: %w", err)
	}
	return data, nil
}

// SaveToFile writes env to path using atomic rename. The format is chosen
// by extension. Parent directories are created when missing.
func SaveToFile(env *Environment, path string) error {
	var data []byte
	var err error
	if isYAML(path) {
		data, err = ToYAML(env)
	} else {
		data, err = ToJSON(env)
	}
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return nil
}

// ResolvePath resolves a relative file path (file bodies, TLS material)
// against the directory of the environment document.
func ResolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
