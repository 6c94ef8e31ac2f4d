package reload

import (
	"strings"

	"github.com/google/uuid"
)

// tagSpace namespaces version tags.
var tagSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/chazu/hotswap/version"))

// Tag returns the version tag of a unit: a name-based UUID of its bytes,
// shortened to twelve hex digits. Equal bytes give equal tags.
func Tag(data []byte) string {
	id := uuid.NewSHA1(tagSpace, data)
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}
