package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glazeware/glaze/internal/errors"
	"github.com/glazeware/glaze/internal/logging"
)

// scan walks the component root one directory level at a time. Every
// subdirectory is a candidate component; nested subdirectories yield
// dot-joined ids. A directory with more than one template or more than one
// script is rejected with a logged diagnostic and scanning continues with
// its siblings (and its children, which are components in their own right).
func scan(root string, logger logging.Logger) (map[string]*Component, error) {
	components := make(map[string]*Component)
	if err := scanDir(root, root, components, logger); err != nil {
		return nil, err
	}
	return components, nil
}

func scanDir(dir, root string, components map[string]*Component, logger logging.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if dir == root {
			return err
		}
		// Unreadable subtree inside the root: skip it, keep scanning.
		logger.Warn(context.Background(), err, "skipping unreadable component directory", "dir", dir)
		return nil
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		if component, err := describe(path, root); err != nil {
			logger.Warn(context.Background(), err, "skipping malformed component", "dir", path)
		} else if component != nil {
			components[component.ID] = component
		}

		if err := scanDir(path, root, components, logger); err != nil {
			return err
		}
	}
	return nil
}

// describe inspects one candidate directory. It returns (nil, nil) for a
// directory with neither template nor script, which is a plain grouping
// directory, not a component.
func describe(dir, root string) (*Component, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return nil, err
	}
	id := strings.ReplaceAll(filepath.ToSlash(rel), "/", ".")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var templates, scripts []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".html":
			templates = append(templates, filepath.Join(dir, entry.Name()))
		case ".js":
			scripts = append(scripts, filepath.Join(dir, entry.Name()))
		}
	}

	// Never silently pick one of several candidates.
	if len(templates) > 1 {
		return nil, errors.NewDiscovery(id, "more than one template file")
	}
	if len(scripts) > 1 {
		return nil, errors.NewDiscovery(id, "more than one script file")
	}
	if len(templates) == 0 && len(scripts) == 0 {
		return nil, nil
	}

	component := &Component{ID: id, DiscoveredAt: time.Now()}
	if len(templates) == 1 {
		component.TemplatePath = templates[0]
	}
	if len(scripts) == 1 {
		component.ScriptPath = scripts[0]
		hash, err := hashFile(scripts[0])
		if err != nil {
			return nil, errors.NewDiscovery(id, "unreadable script file")
		}
		component.ScriptHash = hash
	}
	return component, nil
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
