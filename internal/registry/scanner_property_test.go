package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/glazeware/glaze/internal/logging"
)

// genComponentPaths produces slices of slash-joined component paths with
// one to three lowercase segments.
func genComponentPaths() gopter.Gen {
	segment := gen.RegexMatch(`[a-z][a-z0-9]{0,7}`)
	path := gen.SliceOfN(2, segment).Map(func(parts []string) string {
		return strings.Join(parts, "/")
	})
	return gen.SliceOf(path)
}

func TestScannerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("every directory with exactly one template becomes a dot-joined id", prop.ForAll(
		func(paths []string) bool {
			root := t.TempDir()

			expected := make(map[string]bool)
			for _, p := range paths {
				dir := filepath.Join(root, filepath.FromSlash(p))
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return false
				}
				name := filepath.Base(dir) + ".html"
				if err := os.WriteFile(filepath.Join(dir, name), []byte("<p></p>"), 0o644); err != nil {
					return false
				}
				expected[strings.ReplaceAll(p, "/", ".")] = true
				// Parent grouping dirs with no files must not register,
				// unless some other path made them a component.
			}

			r := New(root, logging.Discard())
			snap, err := r.Rebuild()
			if err != nil {
				return false
			}

			for id := range expected {
				if _, ok := snap.Lookup(id); !ok {
					return false
				}
			}
			for id := range snap.Components() {
				if !expected[id] {
					return false
				}
			}
			return true
		},
		genComponentPaths(),
	))

	properties.TestingRun(t)
}
