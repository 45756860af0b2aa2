package process

import (
	"context"
	"errors"
	"testing"
)

func TestRun_CapturesStdoutAndExitCode(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "echo hello"}, "", nil, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.Stdout != "hello\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hello\n")
	}
}

func TestRun_NonZeroExitIsAValueNotAnError(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "exit 7"}, "", nil, false)
	if err != nil {
		t.Fatalf("Run() returned error for non-zero exit: %v", err)
	}
	if res.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", res.ExitCode)
	}
}

func TestRun_SpawnErrorOnMissingProgram(t *testing.T) {
	_, err := Run(context.Background(), []string{"this-binary-does-not-exist-xyz"}, "", nil, false)
	if err == nil {
		t.Fatal("expected SpawnError, got nil")
	}
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected *SpawnError, got %T: %v", err, err)
	}
}

func TestRun_EnvIsExactNotInherited(t *testing.T) {
	res, err := Run(context.Background(), []string{"sh", "-c", "echo $ONLY_VAR"}, "", map[string]string{"ONLY_VAR": "hi"}, false)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "hi\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hi\n")
	}
}

func TestRunShell_WrapsCommandInShell(t *testing.T) {
	res, err := RunShell(context.Background(), "sh", "echo a && echo b", "", nil, false)
	if err != nil {
		t.Fatalf("RunShell() error = %v", err)
	}
	if res.Stdout != "a\nb\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "a\nb\n")
	}
}
