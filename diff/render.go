package diff

import (
	"strings"

	"github.com/chazu/hotswap/descriptor"
	difflib "github.com/pmezard/go-difflib/difflib"
)

// Render returns a unified diff of the two descriptors' listings. It is
// empty when the listings are identical.
func Render(before, after *descriptor.Descriptor) (string, error) {
	u := difflib.UnifiedDiff{
		A:        splitLines(before.Listing()),
		B:        splitLines(after.Listing()),
		FromFile: before.Name + " (original)",
		ToFile:   after.Name + " (latest)",
		Context:  3,
	}
	return difflib.GetUnifiedDiffString(u)
}

func splitLines(s string) []string {
	if s == "" {
		return []string{}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
