package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFsnotifyOpToOperation(t *testing.T) {
	tests := []struct {
		name     string
		op       fsnotify.Op
		expected Operation
	}{
		{"remove", fsnotify.Remove, OpDelete},
		{"rename", fsnotify.Rename, OpDelete},
		{"create", fsnotify.Create, OpCreate},
		{"write", fsnotify.Write, OpModify},
		{"chmod", fsnotify.Chmod, OpModify},
		{"remove over write", fsnotify.Remove | fsnotify.Write, OpDelete},
		{"rename over create", fsnotify.Rename | fsnotify.Create, OpDelete},
		{"create over write", fsnotify.Create | fsnotify.Write, OpCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fsnotifyOpToOperation(tt.op); got != tt.expected {
				t.Errorf("fsnotifyOpToOperation(%v) = %v, want %v", tt.op, got, tt.expected)
			}
		})
	}
}

func TestOperationString(t *testing.T) {
	tests := []struct {
		op       Operation
		expected string
	}{
		{OpCreate, "create"},
		{OpModify, "modify"},
		{OpDelete, "delete"},
		{Operation(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.expected {
			t.Errorf("Operation(%d).String() = %q, want %q", tt.op, got, tt.expected)
		}
	}
}

func TestIsCatalogFile(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"mosaic.gpkg", true},
		{"/data/arcticdem/MOSAIC.GPKG", true},
		{"geocells/n61w150.geojson", true},
		{"index.json", true},
		{"mosaic.gpkg-journal", false},
		{"mosaic.gpkg-wal", false},
		{"tile_dem.tif", false},
		{"gpkg", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := isCatalogFile(tt.path); got != tt.expected {
				t.Errorf("isCatalogFile(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestRecordAndDue(t *testing.T) {
	root := t.TempDir()
	w, err := New(Config{Root: root, Debounce: time.Second}, nil, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	t0 := time.Now()
	path := filepath.Join(root, "geocells", "n61w150.geojson")

	w.record(path, OpDelete, t0)
	w.record(path, OpCreate, t0.Add(100*time.Millisecond))
	w.record(path, OpModify, t0.Add(200*time.Millisecond))

	if events := w.due(t0.Add(900 * time.Millisecond)); len(events) != 0 {
		t.Fatalf("due() before the debounce period = %v, want none", events)
	}

	events := w.due(t0.Add(1300 * time.Millisecond))
	if len(events) != 1 {
		t.Fatalf("len(due()) = %d, want 1", len(events))
	}
	e := events[0]
	if e.Operation != OpCreate {
		t.Errorf("Operation = %v, want create (delete then create)", e.Operation)
	}
	if e.Key != "geocells/n61w150.geojson" {
		t.Errorf("Key = %q, want geocells/n61w150.geojson", e.Key)
	}

	if events := w.due(t0.Add(5 * time.Second)); len(events) != 0 {
		t.Errorf("due() after dispatch = %v, want none", events)
	}

	w.record(path, OpModify, t0)
	w.record(path, OpDelete, t0)
	if events := w.due(t0.Add(2 * time.Second)); len(events) != 1 || events[0].Operation != OpDelete {
		t.Errorf("modify then delete = %v, want one delete", events)
	}
}

func TestWatcherDeliversCatalogEvents(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "arcticdem"), 0o755); err != nil {
		t.Fatal(err)
	}

	events := make(chan Event, 16)
	handler := func(_ context.Context, e Event) error {
		events <- e
		return nil
	}

	w, err := New(Config{Root: root, Debounce: 50 * time.Millisecond}, handler, testLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = w.Stop() }()

	if err := os.WriteFile(filepath.Join(root, "arcticdem", "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "arcticdem", "mosaic.gpkg"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case e := <-events:
		if e.Key != "arcticdem/mosaic.gpkg" {
			t.Errorf("Key = %q, want arcticdem/mosaic.gpkg", e.Key)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered")
	}

	select {
	case e := <-events:
		t.Errorf("unexpected second event %+v", e)
	case <-time.After(300 * time.Millisecond):
	}
}
