// Package dbtest builds throwaway sqlite databases carrying the production schema
// for repository and service tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var schema = []string{
	`CREATE TABLE courses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price NUMERIC NOT NULL,
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE class_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		course_id INTEGER NOT NULL,
		starts_at DATETIME NOT NULL,
		ends_at DATETIME NOT NULL,
		schedule TEXT NOT NULL DEFAULT '',
		instructor TEXT NOT NULL DEFAULT '',
		total_seats INTEGER NOT NULL,
		available_seats INTEGER NOT NULL CHECK (available_seats >= 0 AND available_seats <= total_seats),
		status TEXT NOT NULL DEFAULT 'aberta',
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		class_session_id INTEGER,
		added_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_cart_entries_user_course_session ON cart_entries (user_id, course_id, class_session_id) WHERE class_session_id IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_cart_entries_user_course ON cart_entries (user_id, course_id) WHERE class_session_id IS NULL`,
	`CREATE TABLE orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_number TEXT NOT NULL CONSTRAINT orders_order_number_key UNIQUE,
		user_id INTEGER NOT NULL,
		subtotal NUMERIC NOT NULL,
		discount NUMERIC NOT NULL DEFAULT 0,
		total NUMERIC NOT NULL CHECK (total > 0),
		coupon_code TEXT,
		status TEXT NOT NULL DEFAULT 'pendente',
		preference_id TEXT,
		checkout_url TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE order_line_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		class_session_id INTEGER,
		course_name TEXT NOT NULL,
		unit_price NUMERIC NOT NULL,
		quantity INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME
	)`,
	`CREATE TABLE payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id INTEGER NOT NULL CONSTRAINT payments_order_id_key UNIQUE,
		method TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pendente',
		gateway_status TEXT,
		gateway_status_detail TEXT,
		payment_type TEXT,
		external_payment_id TEXT,
		transaction_id TEXT,
		amount NUMERIC NOT NULL,
		installments INTEGER,
		card_brand TEXT,
		card_last_four TEXT,
		paid_at DATETIME,
		expires_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE enrollments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		course_id INTEGER NOT NULL,
		class_session_id INTEGER,
		status TEXT NOT NULL DEFAULT 'ativo',
		progress INTEGER NOT NULL DEFAULT 0,
		enrolled_at DATETIME NOT NULL,
		completed_at DATETIME,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE UNIQUE INDEX ux_enrollments_user_course_session ON enrollments (user_id, course_id, class_session_id) WHERE class_session_id IS NOT NULL`,
	`CREATE UNIQUE INDEX ux_enrollments_user_course ON enrollments (user_id, course_id) WHERE class_session_id IS NULL`,
	`CREATE TABLE payment_gateway_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		resource_id TEXT NOT NULL DEFAULT '',
		notification_id TEXT,
		payload TEXT NOT NULL,
		headers TEXT,
		status TEXT NOT NULL DEFAULT 'received',
		outcome TEXT,
		error TEXT,
		order_id INTEGER,
		received_at DATETIME,
		processed_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id INTEGER NOT NULL,
		payload_json BLOB NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME,
		created_at DATETIME
	)`,
}

// Open returns an isolated in-memory sqlite database with every table created.
// The pool is pinned to one connection so transactions see their own writes.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}
