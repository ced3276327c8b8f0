package scripts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

// Default script names shipped for every dialect
const (
	DropTables     = "drop-tables.sql"
	CreateTables   = "create-tables.sql"
	PopulateTables = "populate-tables.sql"
)

// ErrScriptNotFound is returned when no script exists under the requested name
var ErrScriptNotFound = errors.New("script not found")

//go:embed sql
var embedded embed.FS

// Loader resolves <dialect dir>/<script name> to script text
type Loader struct {
	FS fs.FS
}

// NewLoader reads scripts from dir, or from the scripts built into the
// binary when dir is empty
func NewLoader(dir string) *Loader {
	if dir != "" {
		return &Loader{FS: os.DirFS(dir)}
	}
	sub, err := fs.Sub(embedded, "sql")
	if err != nil {
		panic(err)
	}
	return &Loader{FS: sub}
}

// Load returns the text of a script. The .sql extension may be omitted.
func (l *Loader) Load(dialectDir, name string) (string, error) {
	if !strings.HasSuffix(name, ".sql") {
		name += ".sql"
	}
	if !fs.ValidPath(dialectDir) || !fs.ValidPath(name) || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid script path %q/%q", dialectDir, name)
	}
	p := path.Join(dialectDir, name)

	data, err := fs.ReadFile(l.FS, p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrScriptNotFound, p)
	}
	if err != nil {
		return "", fmt.Errorf("read script %s: %w", p, err)
	}
	return string(data), nil
}

// List returns the script names available for a dialect
func (l *Loader) List(dialectDir string) ([]string, error) {
	entries, err := fs.ReadDir(l.FS, dialectDir)
	if err != nil {
		return nil, fmt.Errorf("list scripts in %s: %w", dialectDir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}
