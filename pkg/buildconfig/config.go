// Package buildconfig implements the immutable per-image build
// configuration, its derived views (used files, required parents), and
// the ordered container keying configurations by identifier.
package buildconfig

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/dockerfile"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/ignore"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/imageid"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Config is an immutable descriptor of one image build.
type Config struct {
	identifier      string
	id              imageid.ID
	dockerfilePath  string
	contextPath     string
	file            *dockerfile.File
	parentReference string
	tags            []string
	alwaysPublish   bool
}

// Option customises construction of a Config.
type Option func(*options)

type options struct {
	context       string
	tags          []string
	alwaysPublish bool
}

// WithContext overrides the build context directory; it otherwise
// defaults to the directory containing the Dockerfile.
func WithContext(path string) Option {
	return func(o *options) { o.context = path }
}

// WithTags adds tags to publish the image under, in addition to the
// identifier's own tag, which is always included.
func WithTags(tags []string) Option {
	return func(o *options) { o.tags = tags }
}

// WithAlwaysPublish sets the always-publish flag: the image is
// published even when its fingerprint matched the store.
func WithAlwaysPublish(always bool) Option {
	return func(o *options) { o.alwaysPublish = always }
}

// New constructs a Config, parsing the Dockerfile at dockerfilePath.
// Construction fails (InvalidBuildConfiguration) if identifier is
// malformed or the Dockerfile has no FROM instruction.
func New(identifier, dockerfilePath string, opts ...Option) (*Config, error) {
	id, err := imageid.Parse(identifier)
	if err != nil {
		return nil, err
	}

	absDockerfile, err := filepath.Abs(dockerfilePath)
	if err != nil {
		return nil, thrifterr.InvalidBuildConfiguration(identifier, err.Error())
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	contextPath := o.context
	if contextPath == "" {
		contextPath = filepath.Dir(absDockerfile)
	}
	absContext, err := filepath.Abs(contextPath)
	if err != nil {
		return nil, thrifterr.InvalidBuildConfiguration(identifier, err.Error())
	}

	file, err := dockerfile.Parse(absDockerfile)
	if err != nil {
		return nil, thrifterr.InvalidBuildConfiguration(identifier, err.Error())
	}

	parent, ok := file.From()
	if !ok {
		return nil, thrifterr.InvalidBuildConfiguration(identifier, "no FROM instruction in dockerfile")
	}

	tags := dedupTags(append([]string{id.Tag()}, o.tags...))

	return &Config{
		identifier:      identifier,
		id:              id,
		dockerfilePath:  absDockerfile,
		contextPath:     absContext,
		file:            file,
		parentReference: parent,
		tags:            tags,
		alwaysPublish:   o.alwaysPublish,
	}, nil
}

func dedupTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Identifier is the unique key of this configuration.
func (c *Config) Identifier() string { return c.identifier }

// Name is the image-name part of the identifier.
func (c *Config) Name() string { return c.id.Name() }

// Tag is the tag part of the identifier.
func (c *Config) Tag() string { return c.id.Tag() }

// DockerfilePath is the absolute path to the Dockerfile.
func (c *Config) DockerfilePath() string { return c.dockerfilePath }

// ContextPath is the absolute path to the build context directory.
func (c *Config) ContextPath() string { return c.contextPath }

// Instructions is the ordered, parsed instruction sequence.
func (c *Config) Instructions() []dockerfile.Instruction { return c.file.Instructions }

// ParentReference is the argument of the single FROM instruction.
func (c *Config) ParentReference() string { return c.parentReference }

// Tags is the set of tags to publish under; it always contains the
// identifier's own tag.
func (c *Config) Tags() []string { return c.tags }

// AlwaysPublish reports whether the image is published even when its
// fingerprint has not drifted.
func (c *Config) AlwaysPublish() bool { return c.alwaysPublish }

// RequiredIdentifiers is the single parent reference expressed as a
// list, forward-compatible with multi-stage builds.
func (c *Config) RequiredIdentifiers() []string { return []string{c.parentReference} }

// UsedFiles resolves the concrete set of context paths referenced by
// ADD/COPY instructions: source operands are resolved relative to the
// context root; directories expand to their recursive descendants
// (files and subdirectories, matching what COPY actually places in the
// image, so that an added empty directory still changes the
// fingerprint); URL-form sources are skipped; entries matched by the
// ignore file are removed. Symlinks are never followed: they are
// recorded by their own path, never by the bytes they point to.
func (c *Config) UsedFiles() ([]string, error) {
	matcher, err := ignore.Load(c.contextPath)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	add := func(p string) { seen[p] = struct{}{} }

	for _, pattern := range c.file.SourcePatterns() {
		if isURL(pattern) {
			continue
		}

		full := filepath.Clean(filepath.Join(c.contextPath, pattern))
		info, err := os.Lstat(full)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		if !info.IsDir() {
			rel, rerr := filepath.Rel(c.contextPath, full)
			if rerr != nil {
				return nil, rerr
			}
			if !matcher.Ignored(rel) {
				add(full)
			}
			continue
		}

		walkErr := filepath.Walk(full, func(p string, fi os.FileInfo, werr error) error {
			if werr != nil {
				return nil
			}
			rel, rerr := filepath.Rel(c.contextPath, p)
			if rerr != nil {
				return nil
			}
			if rel == "." {
				return nil
			}
			if matcher.Ignored(rel) {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			add(p)
			return nil
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	result := make([]string, 0, len(seen))
	for p := range seen {
		result = append(result, p)
	}
	return result, nil
}

func isURL(source string) bool {
	return strings.Contains(source, "://")
}
