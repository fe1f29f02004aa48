// Package dockerbuild adapts the build planner, publisher, and
// artifact retriever interfaces onto a real Docker daemon via
// github.com/docker/docker/client.
package dockerbuild

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// NewClient builds a Docker API client from the
// DOCKER_HOST/DOCKER_TLS_VERIFY/DOCKER_CERT_PATH environment. When
// DOCKER_CERT_PATH is set, a transport is built explicitly with
// go-connections/tlsconfig rather than left to the client package's own
// (more limited) env handling, so client certificate verification
// behaves the same way it does for the `docker` CLI itself.
func NewClient() (*client.Client, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}

	if certPath := os.Getenv("DOCKER_CERT_PATH"); certPath != "" {
		tlsOpts := tlsconfig.Options{
			CAFile:             filepath.Join(certPath, "ca.pem"),
			CertFile:           filepath.Join(certPath, "cert.pem"),
			KeyFile:            filepath.Join(certPath, "key.pem"),
			InsecureSkipVerify: os.Getenv("DOCKER_TLS_VERIFY") == "",
		}
		tlsConfig, err := tlsconfig.Client(tlsOpts)
		if err != nil {
			return nil, thrifterr.BuildFailed("", err)
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, thrifterr.BuildFailed("", err)
	}
	return cli, nil
}
