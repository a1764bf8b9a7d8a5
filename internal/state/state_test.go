package state

import (
	"path/filepath"
	"testing"

	"tradedesk/internal/analysis"
)

func TestSnapshotIsDeepCopy(t *testing.T) {
	store := NewStore(Status{Skills: []string{"Crypto"}, Sources: []analysis.Source{{URI: "a"}}})

	snap := store.Snapshot()
	snap.Skills[0] = "mutated"
	snap.Sources[0].URI = "mutated"

	again := store.Snapshot()
	if again.Skills[0] != "Crypto" || again.Sources[0].URI != "a" {
		t.Fatalf("expected snapshot isolation, got %+v", again)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStore(Status{Intelligence: 97.5, Skills: []string{"Energy"}, Sources: []analysis.Source{{Title: "EIA", URI: "u"}}})
	store.SetMonitoring(true)
	if err := store.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}

	restored := NewStore(Status{Intelligence: 95.2})
	if err := restored.Load(path); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := restored.Snapshot()
	if snap.Intelligence != 97.5 || len(snap.Sources) != 1 || snap.Skills[0] != "Energy" {
		t.Fatalf("unexpected restored status: %+v", snap)
	}
	if snap.Monitoring {
		t.Fatalf("monitoring must not survive a restart")
	}
}

func TestLoadMissingFile(t *testing.T) {
	store := NewStore(Status{Intelligence: 95.2})
	if err := store.Load(filepath.Join(t.TempDir(), "absent.json")); err != nil {
		t.Fatalf("expected missing file to be ignored, got %v", err)
	}
}
