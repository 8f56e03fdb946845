package dqr

import (
	"context"
	"strings"
	"testing"
)

func TestConn_DataSourceName(t *testing.T) {
	dsn, err := Conn{Driver: DriverMySQL, Host: "db.example.org", Port: 3306, Name: "redcap", User: "grader", Password: "s3cret"}.DataSourceName()
	if err != nil {
		t.Fatalf("DataSourceName: %v", err)
	}
	for _, want := range []string{"grader:s3cret@tcp(db.example.org:3306)/redcap", "timeout=10s"} {
		if !strings.Contains(dsn, want) {
			t.Fatalf("DSN %q missing %q", dsn, want)
		}
	}

	dsn, err = Conn{Driver: DriverSQLite, DSN: "file:rules.db"}.DataSourceName()
	if err != nil || dsn != "file:rules.db" {
		t.Fatalf("explicit DSN not used: %q, %v", dsn, err)
	}

	if _, err := (Conn{Driver: DriverSQLite, Host: "h", Name: "n"}).DataSourceName(); err == nil {
		t.Fatalf("expected error: sqlite needs explicit DSN")
	}
	if _, err := (Conn{Driver: DriverMySQL}).DataSourceName(); err == nil {
		t.Fatalf("expected error: missing host/name")
	}
}

func TestConn_Configured(t *testing.T) {
	if (Conn{}).Configured() {
		t.Fatalf("empty conn should not be configured")
	}
	if !(Conn{DSN: "x"}).Configured() || !(Conn{Host: "h", Name: "n"}).Configured() {
		t.Fatalf("expected configured")
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), Conn{Driver: "oracle", DSN: "x"}); err == nil {
		t.Fatalf("expected error")
	}
}
