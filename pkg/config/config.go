// Package config reads the user configuration document: YAML after
// environment-variable expansion, with relative paths resolved against
// the configuration file's directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/publish"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Checksum storage backend names accepted by checksum_storage.type.
const (
	StorageStdio  = "stdio"
	StorageLocal  = "local"
	StorageConsul = "consul"
)

// ImageConfig is one entry of docker.images.
type ImageConfig struct {
	Identifier     string
	DockerfilePath string
	ContextPath    string
	Tags           []string
	AlwaysPublish  bool
}

// ChecksumStorageConfig is the checksum_storage document.
type ChecksumStorageConfig struct {
	Type  string
	Path  string
	URL   string
	Token string
	Key   string
	Lock  string
}

// Config is the fully resolved configuration document.
type Config struct {
	Images          []ImageConfig
	Registries      []publish.Registry
	ChecksumStorage ChecksumStorageConfig
}

type rawImage struct {
	Name         string   `yaml:"name"`
	Dockerfile   string   `yaml:"dockerfile"`
	Context      string   `yaml:"context"`
	Tags         []string `yaml:"tags"`
	AlwaysUpload bool     `yaml:"always_upload"`
}

type rawRegistry struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type rawChecksumStorage struct {
	Type  string `yaml:"type"`
	Path  string `yaml:"path"`
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
	Key   string `yaml:"key"`
	Lock  string `yaml:"lock"`
}

type rawConfig struct {
	Docker struct {
		Images     []rawImage    `yaml:"images"`
		Registries []rawRegistry `yaml:"registries"`
	} `yaml:"docker"`
	ChecksumStorage rawChecksumStorage `yaml:"checksum_storage"`
}

// expandEnvTemplates substitutes `${VAR}`/`$VAR` references with their
// environment values before the document is parsed.
func expandEnvTemplates(content string) string {
	return os.Expand(content, os.Getenv)
}

// Load reads and parses the configuration document at path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, thrifterr.InvalidCliArgument(err.Error())
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return nil, thrifterr.InvalidCliArgument(fmt.Sprintf("reading config %s: %v", absPath, err))
	}

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expandEnvTemplates(string(content))), &raw); err != nil {
		return nil, thrifterr.InvalidCliArgument(fmt.Sprintf("parsing config %s: %v", absPath, err))
	}

	base := filepath.Dir(absPath)

	cfg := &Config{}
	for _, img := range raw.Docker.Images {
		cfg.Images = append(cfg.Images, ImageConfig{
			Identifier:     img.Name,
			DockerfilePath: resolvePath(base, img.Dockerfile),
			ContextPath:    resolvePath(base, img.Context),
			Tags:           img.Tags,
			AlwaysPublish:  img.AlwaysUpload,
		})
	}
	for _, reg := range raw.Docker.Registries {
		cfg.Registries = append(cfg.Registries, publish.Registry{
			URL:      reg.URL,
			Username: reg.Username,
			Password: reg.Password,
		})
	}

	cfg.ChecksumStorage = ChecksumStorageConfig{
		Type:  raw.ChecksumStorage.Type,
		Path:  resolvePath(base, raw.ChecksumStorage.Path),
		URL:   raw.ChecksumStorage.URL,
		Token: raw.ChecksumStorage.Token,
		Key:   raw.ChecksumStorage.Key,
		Lock:  raw.ChecksumStorage.Lock,
	}
	if cfg.ChecksumStorage.Type == "" {
		cfg.ChecksumStorage.Type = StorageStdio
	}

	return cfg, nil
}

// resolvePath expands a leading ~ and resolves a relative path against
// base, the configuration file's directory.
func resolvePath(base, path string) string {
	if path == "" {
		return ""
	}
	expanded := path
	if strings.HasPrefix(expanded, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	if filepath.IsAbs(expanded) {
		return expanded
	}
	return filepath.Join(base, expanded)
}

// BuildContainer constructs a buildconfig.Container from every image
// entry, in document order.
func (c *Config) BuildContainer() (*buildconfig.Container, error) {
	container := buildconfig.NewContainer()
	for _, img := range c.Images {
		var opts []buildconfig.Option
		if img.ContextPath != "" {
			opts = append(opts, buildconfig.WithContext(img.ContextPath))
		}
		if len(img.Tags) > 0 {
			opts = append(opts, buildconfig.WithTags(img.Tags))
		}
		if img.AlwaysPublish {
			opts = append(opts, buildconfig.WithAlwaysPublish(true))
		}

		cfg, err := buildconfig.New(img.Identifier, img.DockerfilePath, opts...)
		if err != nil {
			return nil, err
		}
		container.Add(cfg)
	}
	return container, nil
}
