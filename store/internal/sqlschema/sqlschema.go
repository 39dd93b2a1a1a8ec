// Package sqlschema renders the embedded migrations shared by the SQL
// stores. Column names come from a credential.FieldMap, which is validated
// before any name reaches a statement.
package sqlschema

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"text/template"

	"github.com/nigussolomon/nonceauth/credential"
)

// MigrationTable records applied migration names.
const MigrationTable = "schema_migrations"

// Migration is one rendered up-migration.
type Migration struct {
	Name string
	SQL  string
}

// Load reads every .sql file under root in name order, keeps the
// "-- +migrate Up" section and renders column placeholders from fields.
func Load(migrationFS fs.FS, root string, fields credential.FieldMap) ([]Migration, error) {
	if err := fields.Validate(); err != nil {
		return nil, err
	}

	entries, err := fs.ReadDir(migrationFS, root)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := fs.ReadFile(migrationFS, path.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		rendered, err := Render(ExtractUp(string(content)), fields)
		if err != nil {
			return nil, fmt.Errorf("render migration %s: %w", name, err)
		}
		if strings.TrimSpace(rendered) == "" {
			continue
		}
		out = append(out, Migration{Name: name, SQL: rendered})
	}
	return out, nil
}

// ExtractUp returns the SQL in the -- +migrate Up section.
func ExtractUp(content string) string {
	upIdx := strings.Index(content, "-- +migrate Up")
	if upIdx == -1 {
		return content
	}
	downIdx := strings.Index(content, "-- +migrate Down")
	if downIdx == -1 {
		return content[upIdx+len("-- +migrate Up"):]
	}
	return content[upIdx+len("-- +migrate Up") : downIdx]
}

// Render substitutes {{.Identifier}}, {{.Passkey}}, {{.RefreshNonceHash}} and
// {{.AccessNonceHash}} in src.
func Render(src string, fields credential.FieldMap) (string, error) {
	tmpl, err := template.New("migration").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, fields); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Columns is the quoted column list both SQL stores select, in scan order.
func Columns(fields credential.FieldMap) string {
	return strings.Join([]string{
		"id",
		Quote(fields.Identifier),
		Quote(fields.Passkey),
		Quote(fields.RefreshNonceHash),
		Quote(fields.AccessNonceHash),
		"attributes",
		"is_active",
		"created_at",
		"updated_at",
	}, ", ")
}

// Quote double-quotes a validated column name.
func Quote(name string) string {
	return `"` + name + `"`
}
