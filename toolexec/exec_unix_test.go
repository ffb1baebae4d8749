//go:build !windows

package toolexec

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	p := filepath.Join(dir, "tool.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestCommandRunsInToolDirectory(t *testing.T) {
	dir := t.TempDir()
	p := writeScript(t, dir, "pwd")
	if err := EnsureExecutable(p); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	info, _ := os.Stat(p)
	if info.Mode().Perm()&0o111 == 0 {
		t.Fatal("exec bit not set")
	}

	out, err := Command(context.Background(), p).Output()
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	got, _ := filepath.EvalSymlinks(strings.TrimSpace(string(out)))
	want, _ := filepath.EvalSymlinks(dir)
	if got != want {
		t.Fatalf("cwd = %s, want %s", got, want)
	}
}

func TestCancelKillsProcessTree(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	p := writeScript(t, dir, "sleep 30 &\necho $! > "+pidFile+"\nwait")
	EnsureExecutable(p)

	ctx, cancel := context.WithCancel(context.Background())
	cmd := Command(ctx, p)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := os.Stat(pidFile); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("child never started")
		}
		time.Sleep(20 * time.Millisecond)
	}

	start := time.Now()
	cancel()
	cmd.Wait()
	if time.Since(start) > 4*time.Second {
		t.Fatalf("cancel took %v", time.Since(start))
	}

	data, _ := os.ReadFile(pidFile)
	pid := strings.TrimSpace(string(data))
	deadline = time.Now().Add(3 * time.Second)
	for {
		if _, err := os.Stat("/proc/" + pid); os.IsNotExist(err) {
			return
		}
		if _, err := os.Stat("/proc"); err != nil {
			t.Skip("no /proc to inspect grandchildren")
		}
		if time.Now().After(deadline) {
			// A zombie reparented to init still has a /proc entry until reaped.
			status, _ := os.ReadFile("/proc/" + pid + "/status")
			if strings.Contains(string(status), "zombie") {
				return
			}
			t.Fatalf("grandchild %s survived cancellation", pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}
