package razor

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"gopkg.in/yaml.v3"

	"github.com/tqc/go-razor/internal/codegen"
)

// BaseType describes a page base type: the encoder used for expression
// output and the helper namespaces every page of the base imports.
type BaseType = codegen.BaseType

// Config holds the options of a Service.
type Config struct {
	// Logger receives compile and render events. Defaults to a discard logger.
	Logger *slog.Logger `yaml:"-"`

	// Namespaces are the helper namespaces imported by every template.
	Namespaces []string `yaml:"namespaces"`

	// BaseType names the base of generated pages. Empty selects TemplateBase.
	BaseType string `yaml:"base_type"`

	// BaseTypes registers additional base types.
	BaseTypes []BaseType `yaml:"base_types"`

	// CompileTimeout bounds a single compilation. Zero disables the limit.
	CompileTimeout time.Duration `yaml:"compile_timeout"`

	// ViewStartName is the file name of start pages without extension.
	ViewStartName string `yaml:"view_start"`

	// ViewRoot bounds the upward search for start pages.
	ViewRoot string `yaml:"view_root"`

	// Extensions are the view file extensions, in lookup order.
	Extensions []string `yaml:"extensions"`

	// LocationFormats locate layouts by name. {0} is the layout name and
	// {1} the directory of the requesting view below the view root.
	LocationFormats []string `yaml:"location_formats"`

	// HTMLSanitizer selects the policy behind Sanitize: "ugc" or "strict".
	HTMLSanitizer string `yaml:"html_sanitizer"`
}

// DefaultConfig returns a Config with the conventional view layout.
func DefaultConfig() Config {
	return Config{
		Namespaces:    []string{"core"},
		BaseType:      codegen.TemplateBase.Name,
		ViewStartName: "_ViewStart",
		ViewRoot:      "/Views/",
		Extensions:    []string{".cshtml", ".razor", ".gohtml"},
		LocationFormats: []string{
			"~/Views/{1}/{0}",
			"~/Views/Shared/{0}",
		},
		HTMLSanitizer: "ugc",
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (c Config) policy() (*bluemonday.Policy, error) {
	switch c.HTMLSanitizer {
	case "", "ugc":
		return bluemonday.UGCPolicy(), nil
	case "strict":
		return bluemonday.StrictPolicy(), nil
	}
	return nil, fmt.Errorf("[razor] unknown html sanitizer %q", c.HTMLSanitizer)
}

// FileConfig is the on-disk configuration. It can describe several named
// services; Default names the one used when none is requested.
type FileConfig struct {
	Default  string            `yaml:"default"`
	Services map[string]Config `yaml:"services"`
}

// LoadConfig reads a YAML configuration file. Every service starts from
// DefaultConfig, so a file only needs the settings it changes. A file with
// no services section is read as a single service named "default".
func LoadConfig(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[razor] failed to read config: %w", err)
	}

	var doc struct {
		Default  string               `yaml:"default"`
		Services map[string]yaml.Node `yaml:"services"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("[razor] failed to parse config %s: %w", path, err)
	}

	fc := &FileConfig{Default: doc.Default, Services: map[string]Config{}}
	if len(doc.Services) == 0 {
		cfg := DefaultConfig()
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("[razor] failed to parse config %s: %w", path, err)
		}
		fc.Services["default"] = cfg
		fc.Default = "default"
		return fc, nil
	}
	for name, node := range doc.Services {
		cfg := DefaultConfig()
		if err := node.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("[razor] service %q: %w", name, err)
		}
		fc.Services[name] = cfg
	}
	if fc.Default == "" && len(fc.Services) == 1 {
		for name := range fc.Services {
			fc.Default = name
		}
	}
	if _, ok := fc.Services[fc.Default]; !ok {
		return nil, fmt.Errorf("[razor] default service %q is not configured", fc.Default)
	}
	return fc, nil
}

// NewServices builds one Service per configured entry. logger is shared by
// all of them.
func NewServices(fc *FileConfig, logger *slog.Logger) (map[string]*Service, error) {
	services := make(map[string]*Service, len(fc.Services))
	for name, cfg := range fc.Services {
		cfg.Logger = logger
		if logger != nil {
			cfg.Logger = logger.With("service", name)
		}
		svc, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("[razor] service %q: %w", name, err)
		}
		services[name] = svc
	}
	return services, nil
}
