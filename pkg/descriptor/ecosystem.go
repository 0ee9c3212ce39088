package descriptor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is an ecosystem file encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// DefaultFile is looked up in the working directory when no file is given
const DefaultFile = "ecosystem.config.yaml"

// Ecosystem is the file-level container of launch descriptors
type Ecosystem struct {
	Apps []LaunchDescriptor `yaml:"apps" json:"apps" toml:"apps"`
}

// ParseFormat parses a format name
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "yaml", "yml":
		return FormatYAML, nil
	case "json":
		return FormatJSON, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unsupported format %q (want yaml, json or toml)", name)
	}
}

// FormatFromPath detects the format from a file extension
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "js" || ext == "cjs" || ext == "mjs" {
		return "", fmt.Errorf("%s: JavaScript ecosystem files are not evaluated, convert it to yaml, json or toml", path)
	}
	return ParseFormat(ext)
}

// Parse decodes an ecosystem document. A document without an "apps" key
// is read as a single descriptor. Nothing is validated here.
func Parse(data []byte, format Format) (*Ecosystem, error) {
	var raw map[string]interface{}
	if err := unmarshal(data, format, &raw); err != nil {
		return nil, newError(KindMalformed, "", "", "", err)
	}

	eco := &Ecosystem{}
	if _, ok := raw["apps"]; ok {
		if err := unmarshal(data, format, eco); err != nil {
			return nil, newError(KindMalformed, "", "apps", "", err)
		}
		return eco, nil
	}

	var single LaunchDescriptor
	if err := unmarshal(data, format, &single); err != nil {
		return nil, newError(KindMalformed, "", "", "", err)
	}
	eco.Apps = []LaunchDescriptor{single}
	return eco, nil
}

func unmarshal(data []byte, format Format, v interface{}) error {
	switch format {
	case FormatYAML:
		return yaml.Unmarshal(data, v)
	case FormatJSON:
		return json.Unmarshal(data, v)
	case FormatTOML:
		return toml.Unmarshal(data, v)
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// Marshal encodes an ecosystem in the given format
func Marshal(eco *Ecosystem, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(eco); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(eco, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatTOML:
		return toml.Marshal(eco)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// Load reads, parses and validates an ecosystem file. Relative paths are
// resolved against the file's directory unless WithBaseDir overrides it.
func Load(path string, opts ...Option) (*Ecosystem, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, newError(KindMalformed, "", "", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, newError(KindPathNotFound, "", "", path, err)
		}
		return nil, fmt.Errorf("failed to read ecosystem file: %w", err)
	}

	eco, err := Parse(data, format)
	if err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Path == "" {
			cfgErr.Path = path
		}
		return nil, err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	opts = append([]Option{WithBaseDir(filepath.Dir(absPath))}, opts...)
	o := buildOptions(opts)

	for i := range eco.Apps {
		eco.Apps[i] = eco.Apps[i].resolve(o.BaseDir)
	}

	if err := eco.Validate(opts...); err != nil {
		return nil, err
	}
	return eco, nil
}

// LoadApp loads the ecosystem at path and returns the named descriptor.
// An empty name selects the only app of a single-app ecosystem.
func LoadApp(path, name string, opts ...Option) (LaunchDescriptor, error) {
	eco, err := Load(path, opts...)
	if err != nil {
		return LaunchDescriptor{}, err
	}

	if name == "" {
		if len(eco.Apps) != 1 {
			return LaunchDescriptor{}, fmt.Errorf("%s defines %d apps, name one of: %s",
				path, len(eco.Apps), strings.Join(eco.Names(), ", "))
		}
		return eco.Apps[0].Clone(), nil
	}

	d, ok := eco.Find(name)
	if !ok {
		return LaunchDescriptor{}, fmt.Errorf("app %q not found in %s", name, path)
	}
	return d, nil
}

// Validate validates every app and checks names are unique
func (e *Ecosystem) Validate(opts ...Option) error {
	if len(e.Apps) == 0 {
		return newError(KindMalformed, "", "apps", "", errors.New("no apps defined"))
	}

	seen := make(map[string]int, len(e.Apps))
	for i, app := range e.Apps {
		if err := app.Validate(opts...); err != nil {
			return err
		}
		if prev, ok := seen[app.Name]; ok {
			return newError(KindDuplicateName, app.Name, "name", "",
				fmt.Errorf("apps[%d] and apps[%d] share the name", prev, i))
		}
		seen[app.Name] = i
	}
	return nil
}

// Find returns a copy of the named app
func (e *Ecosystem) Find(name string) (LaunchDescriptor, bool) {
	for _, app := range e.Apps {
		if app.Name == name {
			return app.Clone(), true
		}
	}
	return LaunchDescriptor{}, false
}

// Names returns app names in file order
func (e *Ecosystem) Names() []string {
	names := make([]string, 0, len(e.Apps))
	for _, app := range e.Apps {
		names = append(names, app.Name)
	}
	return names
}

// Example returns the ecosystem written by `ecolaunch init`: an ASGI
// backend served by uvicorn under a conda environment's python.
func Example() *Ecosystem {
	return &Ecosystem{
		Apps: []LaunchDescriptor{
			{
				Name:        "Camera_Stream_API_Backend",
				Script:      "/home/ubuntu/miniconda3/envs/vision-track-backend/bin/uvicorn",
				Args:        "main:app --host 0.0.0.0 --port 8000",
				Interpreter: "/home/ubuntu/miniconda3/envs/vision-track-backend/bin/python",
				LogFile:     "/home/ubuntu/pm2_logs/fastapi-app.log",
				OutFile:     "/home/ubuntu/pm2_logs/fastapi-app-out.log",
				ErrorFile:   "/home/ubuntu/pm2_logs/fastapi-app-error.log",
			},
		},
	}
}
