package destination

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFolder receives files whose category has no folder mapping.
const DefaultFolder = "Others"

// Resolver computes collision-free destination paths under a root directory.
type Resolver struct {
	root    string
	folders map[string]string
}

// New creates a resolver for root. folders maps a category to a folder,
// usually relative to root.
func New(root string, folders map[string]string) *Resolver {
	copied := make(map[string]string, len(folders))
	for category, folder := range folders {
		copied[category] = folder
	}
	return &Resolver{
		root:    filepath.Clean(root),
		folders: copied,
	}
}

// Root returns the directory destinations are resolved under
func (r *Resolver) Root() string {
	return r.root
}

// Folder returns the absolute folder used for category. Absolute folder
// mappings are used as is.
func (r *Resolver) Folder(category string) string {
	name, ok := r.folders[category]
	if !ok || strings.TrimSpace(name) == "" {
		name = DefaultFolder
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(r.root, name)
}

// Resolve creates the category folder if needed and returns a path for
// fileName inside it that does not exist yet. Collisions get a numeric
// suffix before the extension: name_1.ext, name_2.ext, ...
func (r *Resolver) Resolve(category, fileName string) (string, error) {
	folder := r.Folder(category)
	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination folder: %w", err)
	}

	candidate := filepath.Join(folder, fileName)
	ext := filepath.Ext(fileName)
	base := strings.TrimSuffix(fileName, ext)

	for counter := 1; ; counter++ {
		exists, err := pathExists(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check destination %s: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = filepath.Join(folder, fmt.Sprintf("%s_%d%s", base, counter, ext))
	}
}

// Rel returns path relative to the resolver root.
func (r *Resolver) Rel(path string) (string, error) {
	return filepath.Rel(r.root, path)
}

func pathExists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
