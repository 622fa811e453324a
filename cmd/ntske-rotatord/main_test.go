package main

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Phala-Network/phala-nts-go/internal/base64url"
)

func TestRotatordVersionFlag(t *testing.T) {
	oldV, oldC, oldD := version, commit, date
	version, commit, date = "v1.2.3", "abc", "2020-01-01T00:00:00Z"
	t.Cleanup(func() { version, commit, date = oldV, oldC, oldD })

	var stdout, stderr bytes.Buffer
	code := run([]string{"--version"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("unexpected exit code: %d (stderr=%q)", code, stderr.String())
	}
	got := strings.TrimSpace(stdout.String())
	want := "v1.2.3 (abc) 2020-01-01T00:00:00Z"
	if got != want {
		t.Fatalf("unexpected version output: got %q, want %q", got, want)
	}
}

func TestRotatordRejectsNonPositiveDuration(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--duration", "0s"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("unexpected exit code: %d (stderr=%q)", code, stderr.String())
	}
}

func TestRotatordRejectsInvalidMasterKey(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--master-key-base64", "not-valid-base64!!"}, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("unexpected exit code: %d (stderr=%q)", code, stderr.String())
	}
}

func TestLoadMasterKeyReusesExistingFileByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	existing := make([]byte, 32)
	for i := range existing {
		existing[i] = byte(i)
	}
	if err := os.WriteFile(path, []byte(base64url.Encode(existing)), 0o600); err != nil {
		t.Fatalf("seed master key file: %v", err)
	}

	got, err := loadMasterKey("", path, false)
	if err != nil {
		t.Fatalf("loadMasterKey: %v", err)
	}
	if base64.StdEncoding.EncodeToString(got) != base64.StdEncoding.EncodeToString(existing) {
		t.Fatalf("expected existing key to be reused, got a different key")
	}
}

func TestLoadMasterKeyOverwriteReplacesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "master.key")
	existing := make([]byte, 32)
	for i := range existing {
		existing[i] = byte(i)
	}
	if err := os.WriteFile(path, []byte(base64url.Encode(existing)), 0o600); err != nil {
		t.Fatalf("seed master key file: %v", err)
	}

	got, err := loadMasterKey("", path, true)
	if err != nil {
		t.Fatalf("loadMasterKey: %v", err)
	}
	if base64.StdEncoding.EncodeToString(got) == base64.StdEncoding.EncodeToString(existing) {
		t.Fatalf("expected a freshly generated key, got the same bytes")
	}

	onDisk, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read master key file: %v", err)
	}
	decoded, err := base64url.Decode(strings.TrimSpace(string(onDisk)))
	if err != nil {
		t.Fatalf("decode persisted key: %v", err)
	}
	if base64.StdEncoding.EncodeToString(decoded) != base64.StdEncoding.EncodeToString(got) {
		t.Fatalf("persisted key does not match the key returned by loadMasterKey")
	}
}
