package dockerbuild

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/buildconfig"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/planner"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Backend is the concrete planner.BuildBackend wrapping the Docker
// daemon's image build endpoint.
type Backend struct {
	cli *client.Client
	log log.Logger
}

// NewBackend returns a Backend. logger may be nil, in which case
// log.None is used.
func NewBackend(cli *client.Client, logger log.Logger) *Backend {
	if logger == nil {
		logger = log.None
	}
	return &Backend{cli: cli, log: logger}
}

// Build tars the configuration's context directory, streams it to the
// daemon's build endpoint with the Dockerfile it already resolved, and
// reports the resulting image ID.
func (b *Backend) Build(cfg *buildconfig.Config) (planner.BuildResult, error) {
	ctx := context.Background()

	relDockerfile, err := filepath.Rel(cfg.ContextPath(), cfg.DockerfilePath())
	if err != nil {
		return planner.BuildResult{}, thrifterr.BuildFailed(cfg.Identifier(), err)
	}

	buildCtx, err := archive.TarWithOptions(cfg.ContextPath(), &archive.TarOptions{})
	if err != nil {
		return planner.BuildResult{}, thrifterr.BuildFailed(cfg.Identifier(), err)
	}
	defer buildCtx.Close()

	resp, err := b.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:       []string{cfg.Identifier()},
		Dockerfile: filepath.ToSlash(relDockerfile),
		Remove:     true,
	})
	if err != nil {
		return planner.BuildResult{}, thrifterr.BuildFailed(cfg.Identifier(), err)
	}
	defer resp.Body.Close()

	imageID, err := b.decodeBuildStream(cfg.Identifier(), resp.Body)
	if err != nil {
		return planner.BuildResult{}, err
	}

	return planner.BuildResult{Identifier: cfg.Identifier(), ImageID: imageID}, nil
}

// decodeBuildStream reads the daemon's newline-delimited JSON build
// log, surfacing the first error as a typed thrifterr.Error and
// tracking the final image ID reported in an "aux" message.
func (b *Backend) decodeBuildStream(identifier string, r io.Reader) (string, error) {
	decoder := json.NewDecoder(r)
	var imageID string

	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", thrifterr.BuildFailed(identifier, err)
		}

		if msg.Error != nil {
			if isDockerfileParseError(msg.Error.Message) {
				return "", thrifterr.InvalidDockerfile(identifier, errors.New(msg.Error.Message))
			}
			return "", thrifterr.BuildStep(identifier, msg.Error.Code, msg.Error.Message)
		}

		if msg.Stream != "" {
			b.log.V(2).Infof("%s", strings.TrimSuffix(msg.Stream, "\n"))
		}

		if msg.Aux != nil {
			var aux types.BuildResult
			if err := json.Unmarshal(*msg.Aux, &aux); err == nil && aux.ID != "" {
				imageID = aux.ID
			}
		}
	}

	return imageID, nil
}

func isDockerfileParseError(message string) bool {
	return strings.Contains(strings.ToLower(message), "dockerfile parse error")
}
