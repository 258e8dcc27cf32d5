package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
)

func TestSetEnvValueKeepsOtherKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("TASKARCH_JWT_SECRET=s3cret\nTASKARCH_SERVER=http://old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := setEnvValue(path, "TASKARCH_SERVER", "http://localhost:8000"); err != nil {
		t.Fatalf("set: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if values["TASKARCH_SERVER"] != "http://localhost:8000" {
		t.Fatalf("server = %q", values["TASKARCH_SERVER"])
	}
	if values["TASKARCH_JWT_SECRET"] != "s3cret" {
		t.Fatalf("secret lost: %v", values)
	}
}

func TestSetEnvValueCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := setEnvValue(path, "TASKARCH_SERVER", "http://x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	values, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(values) != 1 || values["TASKARCH_SERVER"] != "http://x" {
		t.Fatalf("values = %v", values)
	}
}

func TestRedact(t *testing.T) {
	if redact("") != "" || redact("k") != "***" {
		t.Fatal("unexpected redaction")
	}
}
