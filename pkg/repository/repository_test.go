package repository

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/torrust/torrust-tracker-deployer/pkg/environment"
)

func testRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo
}

func testEnv(t *testing.T, name string) *environment.Environment {
	t.Helper()
	env, err := environment.New(name, environment.UserInputs{
		Provider: "lxd",
		SSH: environment.SSHCredentials{
			User:           "torrust",
			Port:           22,
			PrivateKeyPath: "/home/torrust/.ssh/id_ed25519",
		},
		Tracker: environment.TrackerConfig{
			HTTPPort: 7070,
			UDPPort:  6969,
			APIPort:  1212,
		},
	})
	if err != nil {
		t.Fatalf("new environment: %v", err)
	}
	return env
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo := testRepo(t)
	env := testEnv(t, "demo")
	env.Outputs.InstanceAddress = "10.0.0.5"
	env.Outputs.Managed = true

	if err := repo.Save(env); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := repo.Load("demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(loaded, env) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", loaded, env)
	}
}

// TestSaveIsByteStable verifies save(load(name)) leaves the persisted bytes
// unchanged for a previously saved record.
func TestSaveIsByteStable(t *testing.T) {
	repo := testRepo(t)
	env := testEnv(t, "demo")
	if err := repo.Save(env); err != nil {
		t.Fatalf("save: %v", err)
	}

	path := filepath.Join(repo.Dir(), "demo.json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.Load("demo")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := repo.Save(loaded); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(before, after) {
		t.Error("re-saving a loaded record changed the persisted bytes")
	}
}

func TestLoadNotFound(t *testing.T) {
	repo := testRepo(t)

	_, err := repo.Load("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLoadCorruptRecord(t *testing.T) {
	repo := testRepo(t)
	path := filepath.Join(repo.Dir(), "broken.json")
	if err := os.WriteFile(path, []byte(`{"name": "broken", "state":`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := repo.Load("broken")
	var corrupt *CorruptStateError
	if !errors.As(err, &corrupt) {
		t.Fatalf("expected *CorruptStateError, got %T: %v", err, err)
	}
	if corrupt.Name != "broken" {
		t.Errorf("corrupt error names %q", corrupt.Name)
	}
	if corrupt.Troubleshoot() == "" {
		t.Error("expected troubleshooting text")
	}
}

// TestInterruptedSaveKeepsCommittedRecord simulates a crash mid-save: a
// truncated temp file next to the record must not affect what Load sees.
func TestInterruptedSaveKeepsCommittedRecord(t *testing.T) {
	repo := testRepo(t)
	env := testEnv(t, "demo")
	if err := repo.Save(env); err != nil {
		t.Fatalf("save: %v", err)
	}

	// A writer died after creating its temp file but before the rename.
	tmp := filepath.Join(repo.Dir(), "demo.json.tmp12345")
	if err := os.WriteFile(tmp, []byte(`{"name": "dem`), 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := repo.Load("demo")
	if err != nil {
		t.Fatalf("load after interrupted save: %v", err)
	}
	if loaded.State != environment.StateCreated {
		t.Errorf("state = %s, want created", loaded.State)
	}

	names, err := repo.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"demo"}) {
		t.Errorf("list = %v, leftover temp file leaked into listing", names)
	}
}

func TestExists(t *testing.T) {
	repo := testRepo(t)

	if repo.Exists("demo") {
		t.Error("exists before save")
	}
	if err := repo.Save(testEnv(t, "demo")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !repo.Exists("demo") {
		t.Error("not found after save")
	}
}

func TestListSorted(t *testing.T) {
	repo := testRepo(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := repo.Save(testEnv(t, name)); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	names, err := repo.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("list = %v, want %v", names, want)
	}
}

func TestDelete(t *testing.T) {
	repo := testRepo(t)
	if err := repo.Save(testEnv(t, "demo")); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.Delete("demo"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if repo.Exists("demo") {
		t.Error("record still present after delete")
	}
	if err := repo.Delete("demo"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

// TestAcquireSerializesSameName verifies repository locks contend per name
// and are independent across names.
func TestAcquireSerializesSameName(t *testing.T) {
	repo := testRepo(t)

	lock, err := repo.Acquire("demo", time.Second)
	if err != nil {
		t.Fatalf("acquire demo: %v", err)
	}
	defer lock.Release()

	// Same name: second acquisition times out.
	if _, err := repo.Acquire("demo", 200*time.Millisecond); err == nil {
		t.Error("second acquire on same name succeeded while lock held")
	}

	// Different name: no contention.
	other, err := repo.Acquire("other", 200*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire other: %v", err)
	}
	_ = other.Release()
}
