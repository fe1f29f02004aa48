package dockerbuild

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/publish"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// Registry is the concrete publish.RegistryClient and
// publish.ArtifactRetriever wrapping the Docker daemon's tag, push, and
// pull endpoints.
type Registry struct {
	cli client.ImageAPIClient
	log log.Logger
}

// NewRegistry returns a Registry. logger may be nil, in which case
// log.None is used.
func NewRegistry(cli client.ImageAPIClient, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.None
	}
	return &Registry{cli: cli, log: logger}
}

// Tag applies repository:tag to the locally built image, validating
// both through docker/distribution/reference before calling the
// daemon so a malformed repository name surfaces as an UploadError
// rather than an opaque daemon error.
func (r *Registry) Tag(localImageID, repository, tag string) error {
	tagged, err := taggedReference(repository, tag)
	if err != nil {
		return err
	}
	if err := r.cli.ImageTag(context.Background(), localImageID, tagged.String()); err != nil {
		return thrifterr.UploadError(err.Error())
	}
	return nil
}

// Push pushes repository:tag, decoding the daemon's push event stream:
// an event whose error says "image does not exist" becomes
// ImageNotFound; any other error becomes UploadError.
func (r *Registry) Push(repository, tag string, registry publish.Registry) error {
	named, err := reference.ParseNormalizedNamed(repository)
	if err != nil {
		return thrifterr.UploadError(fmt.Sprintf("invalid repository %q: %v", repository, err))
	}
	tagged, err := taggedReference(repository, tag)
	if err != nil {
		return err
	}

	authStr, err := encodeAuth(registry.Username, registry.Password)
	if err != nil {
		return thrifterr.UploadError(err.Error())
	}

	body, err := r.cli.ImagePush(context.Background(), tagged.String(), types.ImagePushOptions{RegistryAuth: authStr})
	if err != nil {
		return thrifterr.UploadError(err.Error())
	}
	defer body.Close()

	return decodePushStream(reference.Path(named), tag, body)
}

// Retrieve attempts to pull repository:tag, reporting a clean miss
// (rather than an error) when the image simply does not exist, so the
// publisher can try the next configured registry. On success it
// returns the pulled reference itself — the daemon records the image
// under that full repository:tag form, not under the bare image name,
// so any subsequent retag must start from it.
func (r *Registry) Retrieve(repository, tag string) (string, bool, error) {
	tagged, err := taggedReference(repository, tag)
	if err != nil {
		return "", false, err
	}

	body, err := r.cli.ImagePull(context.Background(), tagged.String(), types.ImagePullOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return "", false, nil
		}
		return "", false, err
	}
	defer body.Close()
	if _, err := io.Copy(io.Discard, body); err != nil {
		return "", false, err
	}
	return tagged.String(), true, nil
}

func taggedReference(repository, tag string) (reference.NamedTagged, error) {
	named, err := reference.ParseNormalizedNamed(repository)
	if err != nil {
		return nil, thrifterr.UploadError(fmt.Sprintf("invalid repository %q: %v", repository, err))
	}
	tagged, err := reference.WithTag(named, tag)
	if err != nil {
		return nil, thrifterr.UploadError(fmt.Sprintf("invalid tag %q: %v", tag, err))
	}
	return tagged, nil
}

func encodeAuth(username, password string) (string, error) {
	if username == "" && password == "" {
		return "", nil
	}
	authConfig := types.AuthConfig{Username: username, Password: password}
	encoded, err := json.Marshal(authConfig)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(encoded), nil
}

func decodePushStream(name, tag string, r io.Reader) error {
	decoder := json.NewDecoder(r)
	for {
		var msg jsonmessage.JSONMessage
		if err := decoder.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return thrifterr.UploadError(err.Error())
		}
		if msg.Error != nil {
			if strings.Contains(msg.Error.Message, "image does not exist") {
				return thrifterr.ImageNotFound(name, tag)
			}
			return thrifterr.UploadError(msg.Error.Message)
		}
	}
}
