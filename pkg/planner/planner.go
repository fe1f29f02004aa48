// Package planner orders builds over the dependency graph implied by
// FROM references, prunes configurations whose fingerprint already
// matches the store, detects cycles, and invokes the build backend for
// everything that drifted.
package planner

import (
	"sort"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/checksumstore"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/fingerprint"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// BuildResult is what a BuildBackend produces for one configuration,
// enriched with the fingerprint computed right after the build.
type BuildResult struct {
	Identifier  string
	Fingerprint string
	ImageID     string
}

// BuildBackend constructs the artifact for a configuration. Errors it
// returns are wrapped as BuildFailed unless already a typed
// thrifterr.Error (e.g. InvalidDockerfile, BuildStep).
type BuildBackend interface {
	Build(cfg *buildconfig.Config) (BuildResult, error)
}

// Planner drives build(cfg, allowed) and build_all() over a single
// container, read-through fingerprint store, and build backend.
type Planner struct {
	container *buildconfig.Container
	store     *checksumstore.Layered
	engine    *fingerprint.Engine
	backend   BuildBackend
	log       log.Logger
}

// New returns a Planner. logger may be nil, in which case log.None is used.
func New(container *buildconfig.Container, store *checksumstore.Layered, engine *fingerprint.Engine, backend BuildBackend, logger log.Logger) *Planner {
	if logger == nil {
		logger = log.None
	}
	return &Planner{container: container, store: store, engine: engine, backend: backend, log: logger}
}

// Build builds the named configuration and whichever of its managed,
// allowed dependencies are not already up to date, returning the
// configurations actually built. A nil allowed defaults to every
// managed identifier; the configuration's own identifier is always
// added to it.
func (p *Planner) Build(identifier string, allowed []string) (map[string]BuildResult, error) {
	cfg, ok := p.container.Get(identifier)
	if !ok {
		return nil, thrifterr.UnmanagedBuild(identifier)
	}

	allowedSet, err := p.allowedSet(allowed)
	if err != nil {
		return nil, err
	}
	allowedSet[identifier] = struct{}{}

	result := make(map[string]BuildResult)
	if err := p.build(cfg, allowedSet, map[string]struct{}{}, result); err != nil {
		return nil, err
	}
	return result, nil
}

// BuildAll repeatedly picks a managed configuration not yet built and
// calls Build(cfg, remaining), accumulating results, until every
// managed configuration has either been built or was already up to
// date. The first error aborts the whole run.
func (p *Planner) BuildAll() (map[string]BuildResult, error) {
	remaining := make(map[string]struct{})
	for _, id := range p.container.Identifiers() {
		remaining[id] = struct{}{}
	}

	result := make(map[string]BuildResult)
	for len(remaining) > 0 {
		next := pickOne(remaining)

		allowed := make(map[string]struct{}, len(remaining))
		for id := range remaining {
			allowed[id] = struct{}{}
		}

		cfg, _ := p.container.Get(next)
		if err := p.build(cfg, allowed, map[string]struct{}{}, result); err != nil {
			return result, err
		}

		delete(remaining, next)
		for id := range result {
			delete(remaining, id)
		}
	}
	return result, nil
}

func pickOne(set map[string]struct{}) string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids[0]
}

// allowedSet resolves the permitted-build scope: nil means every
// managed identifier, and an explicit list must be a subset of managed.
func (p *Planner) allowedSet(allowed []string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if allowed == nil {
		for _, id := range p.container.Identifiers() {
			set[id] = struct{}{}
		}
		return set, nil
	}
	for _, id := range allowed {
		if !p.container.Has(id) {
			return nil, thrifterr.UnmanagedBuild(id)
		}
		set[id] = struct{}{}
	}
	return set, nil
}

func (p *Planner) build(cfg *buildconfig.Config, allowed, stack map[string]struct{}, result map[string]BuildResult) error {
	id := cfg.Identifier()

	upToDate, err := p.upToDate(cfg)
	if err != nil {
		return err
	}
	if upToDate {
		return nil
	}

	stack[id] = struct{}{}
	defer delete(stack, id)

	for _, parentID := range cfg.RequiredIdentifiers() {
		parent, managed := p.container.Get(parentID)
		if !managed {
			continue
		}
		if _, ok := allowed[parentID]; !ok {
			continue
		}

		parentUpToDate, err := p.upToDate(parent)
		if err != nil {
			return err
		}
		if parentUpToDate {
			continue
		}

		if _, onStack := stack[parentID]; onStack {
			return thrifterr.CircularDependency(parentID)
		}

		if err := p.build(parent, allowed, stack, result); err != nil {
			return err
		}

		parentFingerprint, err := p.engine.Fingerprint(parent)
		if err != nil {
			return err
		}
		if err := p.store.Set(parentID, parentFingerprint); err != nil {
			return err
		}
	}

	p.log.V(1).Infof("building %s", id)
	buildResult, err := p.backend.Build(cfg)
	if err != nil {
		return wrapBuildError(id, err)
	}

	fp, err := p.engine.Fingerprint(cfg)
	if err != nil {
		return err
	}
	buildResult.Identifier = id
	buildResult.Fingerprint = fp
	result[id] = buildResult
	return nil
}

func (p *Planner) upToDate(cfg *buildconfig.Config) (bool, error) {
	stored, ok, err := p.store.Get(cfg.Identifier())
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	current, err := p.engine.Fingerprint(cfg)
	if err != nil {
		return false, err
	}
	return stored == current, nil
}

func wrapBuildError(identifier string, err error) error {
	if typed, ok := err.(*thrifterr.Error); ok {
		return typed
	}
	return thrifterr.BuildFailed(identifier, err)
}
