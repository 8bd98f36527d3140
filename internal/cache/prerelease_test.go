package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestLog(t *testing.T) *PrereleaseLog {
	t.Helper()
	log, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return log
}

func TestPrereleaseLog_Next(t *testing.T) {
	log := openTestLog(t)

	for want := 0; want < 3; want++ {
		got, err := log.Next("beta", "1.3.0")
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if got != want {
			t.Errorf("Next = %d, expected %d", got, want)
		}
	}
}

func TestPrereleaseLog_IndependentSequences(t *testing.T) {
	log := openTestLog(t)

	if _, err := log.Next("beta", "1.3.0"); err != nil {
		t.Fatal(err)
	}
	if _, err := log.Next("beta", "1.3.0"); err != nil {
		t.Fatal(err)
	}

	// A different tag on the same base starts from zero.
	if n, err := log.Next("rc", "1.3.0"); err != nil || n != 0 {
		t.Errorf("Next(rc, 1.3.0) = %d, %v", n, err)
	}
	// The same tag on a different base starts from zero too.
	if n, err := log.Next("beta", "2.0.0"); err != nil || n != 0 {
		t.Errorf("Next(beta, 2.0.0) = %d, %v", n, err)
	}
}

func TestPrereleaseLog_Peek(t *testing.T) {
	log := openTestLog(t)

	if n, err := log.Peek("beta", "1.0.0"); err != nil || n != 0 {
		t.Errorf("Peek on empty log = %d, %v", n, err)
	}
	if _, err := log.Next("beta", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if n, err := log.Peek("beta", "1.0.0"); err != nil || n != 1 {
		t.Errorf("Peek after one issuance = %d, %v", n, err)
	}
	// Peek must not consume a number.
	if n, err := log.Next("beta", "1.0.0"); err != nil || n != 1 {
		t.Errorf("Next after Peek = %d, %v", n, err)
	}
}

func TestPrereleaseLog_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	log, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := log.Next("next", "1.3.0"); err != nil {
		t.Fatal(err)
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if n, err := reopened.Next("next", "1.3.0"); err != nil || n != 1 {
		t.Errorf("Next after reopen = %d, %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "prerelease.db")); err != nil {
		t.Errorf("log database missing: %v", err)
	}
}

func TestPrereleaseLog_Clear(t *testing.T) {
	log := openTestLog(t)
	if _, err := log.Next("beta", "1.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := log.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n, err := log.Next("beta", "1.0.0"); err != nil || n != 0 {
		t.Errorf("Next after Clear = %d, %v", n, err)
	}
}
