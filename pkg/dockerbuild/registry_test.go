package dockerbuild

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/log"
	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// fakeImageAPI stubs the pull endpoint; the embedded interface supplies
// the rest of the method set and panics if anything else is called.
type fakeImageAPI struct {
	client.ImageAPIClient
	pulled  []string
	pullErr error
}

func (f *fakeImageAPI) ImagePull(ctx context.Context, ref string, opts types.ImagePullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pulled = append(f.pulled, ref)
	return io.NopCloser(strings.NewReader("")), nil
}

func TestDecodePushStream_Success(t *testing.T) {
	stream := strings.NewReader(`{"status":"Pushed"}{"status":"latest: digest: sha256:abc size: 528"}`)
	require.NoError(t, decodePushStream("team/myimage", "latest", stream))
}

func TestDecodePushStream_ImageDoesNotExist(t *testing.T) {
	stream := strings.NewReader(`{"errorDetail":{"message":"image does not exist"},"error":"image does not exist"}`)
	err := decodePushStream("team/myimage", "latest", stream)
	require.Error(t, err)
	var typed *thrifterr.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, thrifterr.KindImageNotFound, typed.Kind)
}

func TestDecodePushStream_OtherError(t *testing.T) {
	stream := strings.NewReader(`{"errorDetail":{"message":"unauthorized: authentication required"},"error":"unauthorized: authentication required"}`)
	err := decodePushStream("team/myimage", "latest", stream)
	require.Error(t, err)
	var typed *thrifterr.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, thrifterr.KindUploadError, typed.Kind)
}

func TestEncodeAuth_EmptyWhenNoCredentials(t *testing.T) {
	out, err := encodeAuth("", "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestEncodeAuth_EncodesCredentials(t *testing.T) {
	out, err := encodeAuth("user", "pass")
	require.NoError(t, err)
	require.NotEmpty(t, out)

	decoded, err := base64.URLEncoding.DecodeString(out)
	require.NoError(t, err)
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(decoded, &parsed))
	assert.Equal(t, "user", parsed["username"])
	assert.Equal(t, "pass", parsed["password"])
}

func TestRetrieve_PullsAndReturnsFullReference(t *testing.T) {
	api := &fakeImageAPI{}
	r := NewRegistry(api, log.None)

	ref, found, err := r.Retrieve("registry.example.com/team/myimage", "v1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "registry.example.com/team/myimage:v1", ref)
	assert.Equal(t, []string{"registry.example.com/team/myimage:v1"}, api.pulled)
}

func TestRetrieve_MissingImageIsCleanMiss(t *testing.T) {
	api := &fakeImageAPI{pullErr: errdefs.NotFound(errors.New("no such image"))}
	r := NewRegistry(api, log.None)

	_, found, err := r.Retrieve("registry.example.com/team/myimage", "v1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRetrieve_OtherPullErrorSurfaces(t *testing.T) {
	api := &fakeImageAPI{pullErr: errors.New("daemon unreachable")}
	r := NewRegistry(api, log.None)

	_, _, err := r.Retrieve("registry.example.com/team/myimage", "v1")
	require.Error(t, err)
}

func TestTaggedReference_RejectsInvalidTag(t *testing.T) {
	_, err := taggedReference("registry.example.com/team/myimage", "bad tag with spaces")
	require.Error(t, err)
}

func TestTaggedReference_ValidRepository(t *testing.T) {
	tagged, err := taggedReference("registry.example.com/team/myimage", "v1")
	require.NoError(t, err)
	assert.Equal(t, "v1", tagged.Tag())
}
