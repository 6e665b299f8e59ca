package singleton

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTryAcquire_SingleHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubefleet.lock")
	lock := NewFileLock(path)

	ok, err := lock.TryAcquire()
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !ok {
		t.Fatal("first TryAcquire should succeed")
	}
	defer lock.Release()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading lock file: %v", err)
	}
	if len(data) == 0 {
		t.Error("lock file should contain the holder pid")
	}
}

func TestTryAcquire_SecondHolderBlocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubefleet.lock")
	first := NewFileLock(path)
	second := NewFileLock(path)

	ok, err := first.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = (%v, %v), want (true, nil)", ok, err)
	}
	defer first.Release()

	ok, err = second.TryAcquire()
	if err != nil {
		t.Fatalf("second TryAcquire: %v", err)
	}
	if ok {
		t.Error("second process should not acquire a lock already held")
	}
}

func TestRelease_AllowsReacquisition(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kubefleet.lock")
	first := NewFileLock(path)

	ok, err := first.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("first TryAcquire = (%v, %v)", ok, err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	second := NewFileLock(path)
	ok, err = second.TryAcquire()
	if err != nil || !ok {
		t.Fatalf("reacquisition after release = (%v, %v), want (true, nil)", ok, err)
	}
	_ = second.Release()
}

func TestRelease_SafeWithoutAcquire(t *testing.T) {
	lock := NewFileLock(filepath.Join(t.TempDir(), "never-acquired.lock"))
	if err := lock.Release(); err != nil {
		t.Errorf("Release on a never-acquired lock should be a no-op, got %v", err)
	}
}
