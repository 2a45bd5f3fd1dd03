// Package testhelpers provides small assertion and fixture helpers shared by mcpchat tests.
package testhelpers

import (
	"reflect"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/mcpjungle/mcpchat/internal/migrations"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// AssertEqual fails the test if expected and actual differ.
func AssertEqual[T comparable](t *testing.T, expected, actual T) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected %v, got %v", expected, actual)
	}
}

// AssertNoError fails the test immediately if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Error("Expected an error, got nil")
	}
}

// AssertNotNil fails the test if v is nil or a nil pointer, map, slice, func or interface.
func AssertNotNil(t *testing.T, v any) {
	t.Helper()
	if isNil(v) {
		t.Error("Expected a non-nil value, got nil")
	}
}

// AssertTrue fails the test with msg if cond is false.
func AssertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Error(msg)
	}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// CommandAnnotationTest describes one expected annotation on a cobra command.
type CommandAnnotationTest struct {
	Key      string
	Expected string
}

// TestCommandAnnotations checks that every expected annotation is present with the expected value.
func TestCommandAnnotations(t *testing.T, annotations map[string]string, tests []CommandAnnotationTest) {
	t.Helper()
	for _, tt := range tests {
		got, ok := annotations[tt.Key]
		if !ok {
			t.Errorf("Expected annotation '%s' to be set", tt.Key)
			continue
		}
		if got != tt.Expected {
			t.Errorf("Annotation '%s': expected %q, got %q", tt.Key, tt.Expected, got)
		}
	}
}

// CreateTestDB opens a fresh in-memory sqlite database with all mcpchat tables migrated.
func CreateTestDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	// every new connection to :memory: is a separate, empty database
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := migrations.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
