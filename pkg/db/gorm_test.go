package db

import "testing"

func TestOpenGormSQLite(t *testing.T) {
	gdb, err := OpenGorm(Config{Driver: "sqlite", DSN: "file::memory:"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var one int
	if err := gdb.Raw("SELECT 1").Scan(&one).Error; err != nil {
		t.Fatalf("select: %v", err)
	}
	if one != 1 {
		t.Fatalf("expected 1, got %d", one)
	}
}

func TestOpenGormUnknownDriver(t *testing.T) {
	if _, err := OpenGorm(Config{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
