// Package imageid parses the image identifier form used throughout
// thrifty-builder: name[:tag].
package imageid

import (
	"strings"

	"github.com/wtsi-hgi/thrifty-builder-go/pkg/thrifterr"
)

// DefaultTag is used when an identifier carries no explicit tag.
const DefaultTag = "latest"

const separator = ":"

// ID is a parsed "name[:tag]" image identifier.
type ID struct {
	raw  string
	name string
	tag  string
}

// Parse splits raw into name and tag. A trailing colon with an empty
// tag is rejected.
func Parse(raw string) (ID, error) {
	if raw == "" {
		return ID{}, thrifterr.InvalidBuildConfiguration(raw, "image identifier must not be empty")
	}
	if idx := strings.LastIndex(raw, separator); idx >= 0 {
		name, tag := raw[:idx], raw[idx+1:]
		if tag == "" {
			return ID{}, thrifterr.InvalidBuildConfiguration(raw, "trailing colon with empty tag")
		}
		if name == "" {
			return ID{}, thrifterr.InvalidBuildConfiguration(raw, "empty image name")
		}
		return ID{raw: raw, name: name, tag: tag}, nil
	}
	return ID{raw: raw, name: raw, tag: DefaultTag}, nil
}

// String returns the original "name[:tag]" form used as the identifier.
func (id ID) String() string { return id.raw }

// Name is the part of the identifier before the separating colon.
func (id ID) Name() string { return id.name }

// Tag is the part of the identifier after the separating colon, or
// DefaultTag if none was given.
func (id ID) Tag() string { return id.tag }
