package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pressly/goose/v3"
	"go.uber.org/multierr"
)

var (
	fileNameRe    = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)
	createTableRe = regexp.MustCompile(`(?i)CREATE TABLE (?:IF NOT EXISTS )?([a-z_][a-z0-9_]*)`)
	dropTableRe   = regexp.MustCompile(`(?i)DROP TABLE (?:IF EXISTS )?([a-z_][a-z0-9_]*)`)
	moneyColumnRe = regexp.MustCompile(`(?im)^\s*(price|unit_price|subtotal|discount|total|amount)\s+([a-z]+)`)
)

// ValidateDir checks every .sql migration in dir and reports all problems at once:
// timestamp versions without duplicates, goose annotations in order, tables created on Up
// dropped on Down, and monetary columns declared NUMERIC.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[int64]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".sql" {
			continue
		}
		if !fileNameRe.MatchString(name) {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		version, err := goose.NumericComponent(name)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if prev, ok := seen[version]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name))
		}
		seen[version] = name

		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateSQL(name, string(body)))
	}
	return errs
}

func validateSQL(name, body string) error {
	up := strings.Index(body, "-- +goose Up")
	down := strings.Index(body, "-- +goose Down")
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Up\"", name)
	case down < 0:
		return fmt.Errorf("migration %q missing \"-- +goose Down\"", name)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	var errs error
	if b, e := strings.Count(body, "-- +goose StatementBegin"), strings.Count(body, "-- +goose StatementEnd"); b != e {
		errs = multierr.Append(errs, fmt.Errorf("migration %q has %d StatementBegin and %d StatementEnd", name, b, e))
	}

	upSQL, downSQL := body[up:down], body[down:]
	dropped := map[string]bool{}
	for _, m := range dropTableRe.FindAllStringSubmatch(downSQL, -1) {
		dropped[strings.ToLower(m[1])] = true
	}
	for _, m := range createTableRe.FindAllStringSubmatch(upSQL, -1) {
		if !dropped[strings.ToLower(m[1])] {
			errs = multierr.Append(errs, fmt.Errorf("migration %q creates table %s but Down does not drop it", name, m[1]))
		}
	}
	for _, m := range moneyColumnRe.FindAllStringSubmatch(upSQL, -1) {
		if !strings.EqualFold(m[2], "numeric") {
			errs = multierr.Append(errs, fmt.Errorf("migration %q declares monetary column %s as %s; use NUMERIC", name, m[1], strings.ToUpper(m[2])))
		}
	}
	return errs
}
