package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/pressly/goose/v3"
)

const versionLayout = "20060102150405"

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9_]+`)

// Migrations named create_<table> get a table scaffold with the audit columns every table
// in this schema carries; anything else gets empty Up/Down blocks.
var sqlTemplate = template.Must(template.New("migration").Parse(`-- +goose Up
-- +goose StatementBegin
{{- if .Table}}
CREATE TABLE IF NOT EXISTS {{.Table}} (
    id          BIGSERIAL PRIMARY KEY,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
{{- else}}
-- {{.Name}}
{{- end}}
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
{{- if .Table}}
DROP TABLE IF EXISTS {{.Table}};
{{- else}}
-- rollback {{.Name}}
{{- end}}
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql. The new version must sort
// after every migration already in dir, since goose refuses out-of-order versions by default.
func CreateSQLMigration(dir string, name string) (string, error) {
	return createSQLMigration(dir, name, time.Now().UTC())
}

func createSQLMigration(dir, name string, now time.Time) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := nameSanitizeRe.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "_")
	safe = strings.Trim(safe, "_")
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	version := now.Format(versionLayout)
	latest, err := latestVersion(dir)
	if err != nil {
		return "", err
	}
	if latest != "" && version <= latest {
		return "", fmt.Errorf("new version %s does not sort after latest migration %s", version, latest)
	}

	path := filepath.Join(dir, version+"_"+safe+".sql")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create migration %q: %w", path, err)
	}
	defer f.Close()

	vars := struct{ Name, Table string }{Name: safe, Table: strings.TrimPrefix(safe, "create_")}
	if vars.Table == safe {
		vars.Table = ""
	}
	if err := sqlTemplate.Execute(f, vars); err != nil {
		return "", fmt.Errorf("render migration %q: %w", path, err)
	}
	return path, nil
}

func latestVersion(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return "", fmt.Errorf("list migrations: %w", err)
	}
	var latest int64
	for _, file := range files {
		v, err := goose.NumericComponent(file)
		if err != nil {
			continue
		}
		if v > latest {
			latest = v
		}
	}
	if latest == 0 {
		return "", nil
	}
	return fmt.Sprintf("%d", latest), nil
}
