package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateScaffoldsTableMigrations(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	path, err := createSQLMigration(dir, "Create Coupons", now)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "20260310083000_create_coupons.sql"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), "CREATE TABLE IF NOT EXISTS coupons (")
	require.Contains(t, string(body), "DROP TABLE IF EXISTS coupons;")
	require.NoError(t, ValidateDir(dir))
}

func TestCreateRejectsVersionsThatSortBeforeExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)
	_, err := createSQLMigration(dir, "add_coupon_limit", now)
	require.NoError(t, err)

	_, err = createSQLMigration(dir, "add_coupon_expiry", now)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not sort after")

	_, err = createSQLMigration(dir, "add_coupon_expiry", now.Add(-time.Hour))
	require.Error(t, err)

	path, err := createSQLMigration(dir, "add_coupon_expiry", now.Add(time.Second))
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "20260310083001_add_coupon_expiry.sql"))
}

func TestCreateRejectsEmptyNames(t *testing.T) {
	_, err := createSQLMigration(t.TempDir(), " !! ", time.Now())
	require.Error(t, err)
	_, err = createSQLMigration("", "x", time.Now())
	require.Error(t, err)
}

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestValidateReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "20260310083000_create_coupons.sql", `-- +goose Up
-- +goose StatementBegin
CREATE TABLE IF NOT EXISTS coupons (
    id        BIGSERIAL PRIMARY KEY,
    discount  DOUBLE PRECISION NOT NULL
);
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- +goose StatementEnd
`)
	writeMigration(t, dir, "20260310083000_add_coupon_limit.sql", "-- +goose Up\n-- +goose Down\n")
	writeMigration(t, dir, "coupons.sql", "-- +goose Up\n-- +goose Down\n")
	writeMigration(t, dir, "20260310090000_backwards.sql", "-- +goose Down\n-- +goose Up\n")
	writeMigration(t, dir, "README.md", "not a migration")

	err := ValidateDir(dir)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, `invalid migration filename "coupons.sql"`)
	require.Contains(t, msg, "duplicate migration version 20260310083000")
	require.Contains(t, msg, "creates table coupons but Down does not drop it")
	require.Contains(t, msg, "monetary column discount as DOUBLE; use NUMERIC")
	require.Contains(t, msg, "has Down before Up")
}

func TestValidateAcceptsEmptyDir(t *testing.T) {
	require.NoError(t, ValidateDir(t.TempDir()))
	require.Error(t, ValidateDir(""))
}
