package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestVersionFlag(t *testing.T) {
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

func TestMissingHostIsUsageError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != 2 {
		t.Fatalf("unexpected exit code: %d (stderr=%q)", code, stderr.String())
	}
}

func TestUnreachableHostFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run([]string{"--host", "127.0.0.1", "--port", "1", "--timeout", "200ms"}, &stdout, &stderr)
	if code != 1 {
		t.Fatalf("unexpected exit code: %d (stdout=%q stderr=%q)", code, stdout.String(), stderr.String())
	}
	if stderr.Len() == 0 {
		t.Fatal("expected an error message on stderr")
	}
}
