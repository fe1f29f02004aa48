// Package publish tags and pushes built images to every configured
// registry, then commits their fingerprints to the persistent store.
// Committing strictly after a successful push is what guarantees the
// store never claims an image that was not published.
package publish

import (
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/checksumstore"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Registry is one configured push destination.
type Registry struct {
	URL       string
	Namespace string
	Username  string
	Password  string
}

// RegistryClient performs the per-registry operations the publisher
// needs: tagging a locally-built image and pushing it, decoding the
// push event stream into a single error when one occurs.
type RegistryClient interface {
	Tag(localImageID, repository, tag string) error
	Push(repository, tag string, registry Registry) error
}

// ArtifactRetriever fetches an image from a registry so it can be
// retagged when always-publish applies to a configuration that was not
// actually rebuilt this run. On success it reports the local reference
// the pull created, which is the only reference the daemon is
// guaranteed to know the image by.
type ArtifactRetriever interface {
	Retrieve(repository, tag string) (localRef string, found bool, err error)
}

// BuiltImage is what the planner hands the publisher for a
// configuration that was actually rebuilt this run.
type BuiltImage struct {
	Identifier  string
	ImageID     string
	Fingerprint string
}

// Publisher pushes configurations to a set of registries and records
// their fingerprints.
type Publisher struct {
	registries []Registry
	client     RegistryClient
	retriever  ArtifactRetriever
	store      *checksumstore.Layered
	log        log.Logger
}

// New returns a Publisher that pushes to every registry in registries.
func New(registries []Registry, client RegistryClient, retriever ArtifactRetriever, store *checksumstore.Layered, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.None
	}
	return &Publisher{registries: registries, client: client, retriever: retriever, store: store, log: logger}
}

// Publish processes every managed configuration: those in built
// (just-built this run) are always pushed; the rest are pushed only
// when always-publish is set, after first being retrieved from a
// registry so there is a local image to retag. A failure publishing one
// configuration does not stop the others from being attempted; every
// error encountered is returned together so the caller's exit code
// reflects the run as a whole.
func (p *Publisher) Publish(configs []*buildconfig.Config, built map[string]BuiltImage) error {
	if len(p.registries) == 0 {
		p.log.Info("no Docker registries defined so will not upload images (or update checksums in store)")
		return nil
	}

	var result error

	for _, cfg := range configs {
		image, wasBuilt := built[cfg.Identifier()]
		if !wasBuilt {
			if !cfg.AlwaysPublish() {
				continue
			}
			localRef, retrieved := p.retrieveForRetag(cfg)
			if !retrieved {
				p.log.Warningf("could not retrieve %s from any registry for always-publish retag, skipping", cfg.Identifier())
				continue
			}
			fp, ok, err := p.store.Get(cfg.Identifier())
			if err != nil {
				result = multierror.Append(result, err)
				continue
			}
			if !ok {
				continue
			}
			image = BuiltImage{Identifier: cfg.Identifier(), ImageID: localRef, Fingerprint: fp}
		}

		if err := p.publishOne(cfg, image); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}

// retrieveForRetag attempts, in turn, to pull cfg's image from every
// configured registry, stopping at the first success and returning the
// local reference the pull created. Misses are logged at verbose
// level, hits at info.
func (p *Publisher) retrieveForRetag(cfg *buildconfig.Config) (string, bool) {
	for _, registry := range p.registries {
		repository, err := repositoryFor(registry, cfg.Name())
		if err != nil {
			p.log.Errorf("cannot derive repository for %s on %s: %v", cfg.Identifier(), registry.URL, err)
			continue
		}
		localRef, found, err := p.retriever.Retrieve(repository, cfg.Tag())
		if err != nil {
			p.log.Errorf("error retrieving %s from %s: %v", cfg.Identifier(), repository, err)
			continue
		}
		if found {
			p.log.Infof("retrieved layers of image in %s", repository)
			return localRef, true
		}
		p.log.V(1).Infof("did not find image in %s", repository)
	}
	return "", false
}

// publishOne tags and pushes every tag of cfg to every registry; after
// all tags succeed on one registry it commits the fingerprint. Each
// (configuration, registry) push is independent: a failure on one
// registry does not prevent attempting the others, the fingerprint is
// committed as soon as the first registry fully succeeds, and any
// registry's failure is still returned so the caller's exit code
// reflects it.
func (p *Publisher) publishOne(cfg *buildconfig.Config, image BuiltImage) error {
	committed := false
	var pushErrs error

	for _, registry := range p.registries {
		repository, err := repositoryFor(registry, cfg.Name())
		if err != nil {
			pushErrs = multierror.Append(pushErrs, err)
			continue
		}

		allTagsOK := true
		for _, tag := range cfg.Tags() {
			if err := p.client.Tag(image.ImageID, repository, tag); err != nil {
				pushErrs = multierror.Append(pushErrs, err)
				allTagsOK = false
				break
			}
			p.log.Infof("uploading image to %s with tag: %s", repository, tag)
			if err := p.client.Push(repository, tag, registry); err != nil {
				pushErrs = multierror.Append(pushErrs, err)
				allTagsOK = false
				break
			}
		}

		if allTagsOK && !committed {
			// Commits straight to the persistent store, bypassing the
			// overlay: a config the planner touched only while computing
			// a sibling's parent hash must never reach persistent storage
			// until its own publish has actually succeeded.
			if err := p.store.Persistent().Set(cfg.Identifier(), image.Fingerprint); err != nil {
				return err
			}
			committed = true
		}
	}

	return pushErrs
}

// repositoryFor derives the push repository URL for name against
// registry, deriving a namespace from the image name when the registry
// does not define one, and failing with NamespaceUnknown when neither
// source provides one.
func repositoryFor(registry Registry, name string) (string, error) {
	namespace := registry.Namespace
	imageName := name
	if namespace == "" {
		parts := strings.SplitN(name, "/", 2)
		if len(parts) != 2 {
			return "", thrifterr.NamespaceUnknown(name)
		}
		namespace, imageName = parts[0], parts[1]
	}
	return registry.URL + "/" + namespace + "/" + imageName, nil
}
