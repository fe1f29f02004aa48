// Package fingerprint derives a deterministic content fingerprint for a
// build configuration from its Dockerfile instructions, the context
// files those instructions reference, and — transitively — the
// fingerprint of its managed parent image.
package fingerprint

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/hash"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Engine computes fingerprints for configurations held in a container,
// recursing through managed parents.
type Engine struct {
	factory   hash.Factory
	container *buildconfig.Container
}

// New returns an Engine that resolves parent references against container.
func New(container *buildconfig.Container, factory hash.Factory) *Engine {
	if factory == nil {
		factory = hash.MD5
	}
	return &Engine{factory: factory, container: container}
}

// Fingerprint computes the fingerprint of cfg: the hash of the
// concatenation of the instruction hash, the context hash, and the
// parent hash, in that fixed order.
func (e *Engine) Fingerprint(cfg *buildconfig.Config) (string, error) {
	return e.fingerprint(cfg, map[string]struct{}{})
}

func (e *Engine) fingerprint(cfg *buildconfig.Config, visiting map[string]struct{}) (string, error) {
	id := cfg.Identifier()
	if _, ok := visiting[id]; ok {
		return "", thrifterr.CircularDependency(id)
	}
	visiting[id] = struct{}{}
	defer delete(visiting, id)

	instructionHash := e.instructionHash(cfg)

	contextHash, err := e.contextHash(cfg)
	if err != nil {
		return "", err
	}

	parentHash, err := e.parentHash(cfg, visiting)
	if err != nil {
		return "", err
	}

	final := e.factory()
	final.Update(instructionHash)
	final.Update(contextHash)
	final.Update(parentHash)
	return final.Finalize(), nil
}

// instructionHash hashes the original source line of every
// instruction, in file order.
func (e *Engine) instructionHash(cfg *buildconfig.Config) string {
	h := e.factory()
	for _, instr := range cfg.Instructions() {
		h.Update(instr.Original)
	}
	return h.Finalize()
}

// contextHash hashes, for every used file in sorted order: its byte
// contents when it is a regular file, its path relative to the context
// root, and its low nine permission bits. Directories and symlinks
// contribute only path and permissions.
func (e *Engine) contextHash(cfg *buildconfig.Config) (string, error) {
	used, err := cfg.UsedFiles()
	if err != nil {
		return "", err
	}
	sort.Strings(used)

	h := e.factory()
	for _, path := range used {
		info, err := os.Lstat(path)
		if err != nil {
			return "", err
		}

		if info.Mode().IsRegular() {
			content, err := os.ReadFile(path)
			if err != nil {
				return "", err
			}
			h.Update(content)
		}

		rel, err := filepath.Rel(cfg.ContextPath(), path)
		if err != nil {
			return "", err
		}
		h.Update(rel)
		h.Update(strconv.FormatUint(uint64(info.Mode().Perm()), 10))
	}
	return h.Finalize(), nil
}

// parentHash recursively fingerprints the parent when it is managed in
// the same container, and returns the empty string for an external
// parent, which is pinned by reference string only (the reference
// already contributes through the FROM instruction line).
func (e *Engine) parentHash(cfg *buildconfig.Config, visiting map[string]struct{}) (string, error) {
	parent, ok := e.container.Get(cfg.ParentReference())
	if !ok {
		return "", nil
	}
	return e.fingerprint(parent, visiting)
}
