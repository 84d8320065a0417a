package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func newTestStore(t *testing.T, contents *string) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trusted_plates.json")
	if contents != nil {
		if err := os.WriteFile(path, []byte(*contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return Open(path, zerolog.Nop()), path
}

func strPtr(s string) *string { return &s }

func TestOpenDegradesToEmpty(t *testing.T) {
	cases := map[string]*string{
		"missing file":  nil,
		"empty file":    strPtr(""),
		"whitespace":    strPtr("  \n"),
		"null":          strPtr("null"),
		"malformed":     strPtr("{not json"),
		"wrong type":    strPtr(`{"plates": ["A1"]}`),
		"numbers array": strPtr(`[1, 2, 3]`),
	}

	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			s, logs := openWithLogs(t, contents)
			if s.Len() != 0 {
				t.Errorf("expected empty registry, got %v", s.Snapshot())
			}
			if !bytes.Contains(logs.Bytes(), []byte(`"level":"warn"`)) {
				t.Errorf("expected a warning, got logs %q", logs.String())
			}
		})
	}
}

func TestOpenValidFileDoesNotWarn(t *testing.T) {
	for _, contents := range []string{`[]`, `["BE1653AAG"]`} {
		_, logs := openWithLogs(t, &contents)
		if bytes.Contains(logs.Bytes(), []byte(`"level":"warn"`)) {
			t.Errorf("%s: unexpected warning %q", contents, logs.String())
		}
	}
}

func openWithLogs(t *testing.T, contents *string) (*Store, *bytes.Buffer) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trusted_plates.json")
	if contents != nil {
		if err := os.WriteFile(path, []byte(*contents), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	var logs bytes.Buffer
	return Open(path, zerolog.New(&logs)), &logs
}

func TestOpenNormalizesAndDeduplicates(t *testing.T) {
	s, _ := newTestStore(t, strPtr(`["be1653aag", "B1030NZQ", "BE1653AAG", "  ", "b 12-abc"]`))
	want := []string{"BE1653AAG", "B1030NZQ", "B12ABC"}
	if got := s.Snapshot(); !reflect.DeepEqual(got, want) {
		t.Errorf("Snapshot() = %v, want %v", got, want)
	}
}

func TestAddPersistsBeforeAck(t *testing.T) {
	s, path := newTestStore(t, nil)

	m, err := s.Add("be1653aag")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !m.Accepted || !reflect.DeepEqual(m.Plates, []string{"BE1653AAG"}) {
		t.Fatalf("unexpected mutation %+v", m)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("registry file not written: %v", err)
	}
	var onDisk []string
	if err := json.Unmarshal(data, &onDisk); err != nil {
		t.Fatalf("registry file is not a JSON array: %v", err)
	}
	if !reflect.DeepEqual(onDisk, []string{"BE1653AAG"}) {
		t.Errorf("on disk = %v", onDisk)
	}
	if !bytes.Contains(data, []byte("\n  \"BE1653AAG\"")) {
		t.Errorf("registry file is not pretty printed:\n%s", data)
	}
}

func TestAddDuplicateIsNoop(t *testing.T) {
	s, _ := newTestStore(t, strPtr(`["BE1653AAG"]`))

	m, err := s.Add("Be1653aaG")
	if err != nil {
		t.Fatal(err)
	}
	if m.Accepted {
		t.Error("duplicate add should not be accepted")
	}
	if s.Len() != 1 || !reflect.DeepEqual(m.Plates, []string{"BE1653AAG"}) {
		t.Errorf("registry changed: %v", m.Plates)
	}
}

func TestAddRejectsEmptyPlate(t *testing.T) {
	s, path := newTestStore(t, nil)

	if _, err := s.Add(" -- "); !errors.Is(err, ErrInvalidPlate) {
		t.Fatalf("expected ErrInvalidPlate, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected add should not create the registry file")
	}
}

func TestRemove(t *testing.T) {
	s, path := newTestStore(t, strPtr(`["BE1653AAG", "B1030NZQ", "B12ABC"]`))

	m, err := s.Remove("b1030nzq")
	if err != nil {
		t.Fatal(err)
	}
	if !m.Accepted || !reflect.DeepEqual(m.Plates, []string{"BE1653AAG", "B12ABC"}) {
		t.Fatalf("unexpected mutation %+v", m)
	}

	reloaded := Open(path, zerolog.Nop())
	if !reflect.DeepEqual(reloaded.Snapshot(), m.Plates) {
		t.Errorf("reloaded = %v, want %v", reloaded.Snapshot(), m.Plates)
	}
}

func TestRemoveAbsentLeavesFileUntouched(t *testing.T) {
	original := "[\"BE1653AAG\"]"
	s, path := newTestStore(t, &original)
	before, _ := os.Stat(path)

	m, err := s.Remove("ZZ999ZZ")
	if err != nil {
		t.Fatal(err)
	}
	if m.Accepted {
		t.Error("removing an absent plate should not be accepted")
	}
	if !reflect.DeepEqual(m.Plates, []string{"BE1653AAG"}) {
		t.Errorf("snapshot changed: %v", m.Plates)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != original {
		t.Errorf("file rewritten by a no-op: %q", data)
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) {
		t.Error("file modification time changed on a no-op")
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	s, path := newTestStore(t, nil)
	for _, p := range []string{"B12ABC", "BE1653AAG", "B1030NZQ", "D4444XY"} {
		if _, err := s.Add(p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.Remove("BE1653AAG"); err != nil {
		t.Fatal(err)
	}
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}

	reloaded := Open(path, zerolog.Nop())
	got, want := reloaded.Snapshot(), s.Snapshot()
	sort.Strings(got)
	sort.Strings(want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip: got %v, want %v", got, want)
	}
}

func TestPersistEmptyRegistryWritesArray(t *testing.T) {
	s, path := newTestStore(t, nil)
	if err := s.Persist(); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if string(bytes.TrimSpace(data)) != "[]" {
		t.Errorf("empty registry persisted as %q", data)
	}
}

func TestFailedPersistRollsBack(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := Open(filepath.Join(blocker, "plates.json"), zerolog.Nop())

	if _, err := s.Add("BE1653AAG"); err == nil {
		t.Fatal("expected persist error")
	}
	if s.Len() != 0 || s.Contains("BE1653AAG") {
		t.Errorf("failed add left state behind: %v", s.Snapshot())
	}
}

func TestConcurrentMutations(t *testing.T) {
	s, path := newTestStore(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Add(fmt.Sprintf("P%03d", i)); err != nil {
				t.Error(err)
			}
			_ = s.Snapshot()
		}(i)
	}
	wg.Wait()

	if s.Len() != 20 {
		t.Fatalf("Len() = %d, want 20", s.Len())
	}
	reloaded := Open(path, zerolog.Nop())
	if reloaded.Len() != 20 {
		t.Errorf("persisted %d plates, want 20", reloaded.Len())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s, _ := newTestStore(t, strPtr(`["BE1653AAG"]`))
	snap := s.Snapshot()
	snap[0] = "MUTATED"
	if s.Snapshot()[0] != "BE1653AAG" {
		t.Error("Snapshot shares memory with the store")
	}
}
