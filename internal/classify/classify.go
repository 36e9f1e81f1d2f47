package classify

import (
	"path/filepath"
	"sort"
	"strings"
)

// DefaultCategory is returned for files whose extension is not registered.
const DefaultCategory = "Others"

// Table maps file extensions to categories
type Table struct {
	order []string
	exts  map[string]map[string]struct{}
}

// NewTable builds a table from a category -> extensions mapping.
// Extensions are normalized to lowercase with a leading dot. Categories are
// consulted in name order so lookups do not depend on map iteration.
func NewTable(fileTypes map[string][]string) *Table {
	t := &Table{
		exts: make(map[string]map[string]struct{}, len(fileTypes)),
	}

	for category, extensions := range fileTypes {
		set := make(map[string]struct{}, len(extensions))
		for _, ext := range extensions {
			if ext = NormalizeExtension(ext); ext != "" {
				set[ext] = struct{}{}
			}
		}
		t.exts[category] = set
		t.order = append(t.order, category)
	}
	sort.Strings(t.order)

	return t
}

// Classify returns the category of fileName, or DefaultCategory.
func (t *Table) Classify(fileName string) string {
	ext := Extension(fileName)
	if ext == "" || t == nil {
		return DefaultCategory
	}

	for _, category := range t.order {
		if _, ok := t.exts[category][ext]; ok {
			return category
		}
	}
	return DefaultCategory
}

// Categories returns the configured categories in lookup order
func (t *Table) Categories() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Extension returns the lowercase extension of fileName including the dot.
func Extension(fileName string) string {
	return strings.ToLower(filepath.Ext(fileName))
}

// NormalizeExtension lowercases ext and makes sure it starts with a dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
