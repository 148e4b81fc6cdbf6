package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"text/template"
	"time"
)

var migrationTemplate = template.Must(template.New("migration").Parse(`-- Migration: {{.Name}}{{if .Down}} (Rollback){{end}}
-- Created: {{.Timestamp}}
{{- if .Description}}
-- Description: {{.Description}}
{{- end}}

`))

// versionWidth matches golang-migrate's zero-padded sequential numbering
const versionWidth = 6

var (
	nonWordRun   = regexp.MustCompile(`[^a-z0-9]+`)
	migrationRef = regexp.MustCompile(`^(\d+)_(.+)\.up\.sql$`)
)

// MigrationFile represents a migration file pair
type MigrationFile struct {
	Version  string
	Name     string
	UpPath   string
	DownPath string
}

// CreateMigration writes an empty up/down pair numbered after the highest
// existing migration in migrationsDir.
func CreateMigration(migrationsDir, name, description string) (*MigrationFile, error) {
	slug := sanitizeName(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q has no usable characters", name)
	}
	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	next, err := nextVersion(migrationsDir)
	if err != nil {
		return nil, err
	}
	version := fmt.Sprintf("%0*d", versionWidth, next)
	base := filepath.Join(migrationsDir, version+"_"+slug)

	mf := &MigrationFile{
		Version:  version,
		Name:     slug,
		UpPath:   base + ".up.sql",
		DownPath: base + ".down.sql",
	}

	stamp := time.Now().Format(time.RFC3339)
	if err := writeMigration(mf.UpPath, slug, description, stamp, false); err != nil {
		return nil, err
	}
	if err := writeMigration(mf.DownPath, slug, description, stamp, true); err != nil {
		_ = os.Remove(mf.UpPath)
		return nil, err
	}
	return mf, nil
}

func writeMigration(path, name, description, stamp string, down bool) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	return migrationTemplate.Execute(f, map[string]any{
		"Name":        name,
		"Description": description,
		"Timestamp":   stamp,
		"Down":        down,
	})
}

func nextVersion(migrationsDir string) (int, error) {
	names, err := ListMigrations(migrationsDir)
	if err != nil {
		return 0, err
	}
	highest := 0
	for _, n := range names {
		v, _ := strconv.Atoi(strings.SplitN(n, "_", 2)[0])
		highest = max(highest, v)
	}
	return highest + 1, nil
}

// sanitizeName lowercases name and collapses every non-alphanumeric run to one underscore
func sanitizeName(name string) string {
	return strings.Trim(nonWordRun.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// ListMigrations returns the migration base names in migrationsDir, sorted by version
func ListMigrations(migrationsDir string) ([]string, error) {
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	type ref struct {
		version int
		base    string
	}
	var refs []ref
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := migrationRef.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		v, _ := strconv.Atoi(m[1])
		refs = append(refs, ref{version: v, base: strings.TrimSuffix(entry.Name(), ".up.sql")})
	}
	slices.SortFunc(refs, func(a, b ref) int { return a.version - b.version })

	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.base)
	}
	return names, nil
}
