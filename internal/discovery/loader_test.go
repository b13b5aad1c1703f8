package discovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadDir(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "QueueWorker", "function.json"),
		`{"trigger":{"type":"queue","queueName":"work","batchSize":16}}`)
	writeFile(t, filepath.Join(root, "QueueWorker", "run.js"), "")
	writeFile(t, filepath.Join(root, "QueueWorker", "helper.js"), "")

	writeFile(t, filepath.Join(root, "Nightly", "function.yaml"), `
trigger:
  type: timer
  schedule: "0 0 2 * * *"
`)
	writeFile(t, filepath.Join(root, "Nightly", "index.py"), "")

	writeFile(t, filepath.Join(root, "Off", "function.json"), `{"disabled":true,"trigger":{"type":"queue"}}`)
	writeFile(t, filepath.Join(root, "Off", "run.sh"), "")

	writeFile(t, filepath.Join(root, "notes", "README.md"), "")
	writeFile(t, filepath.Join(root, ".hidden", "function.json"), `{}`)
	writeFile(t, filepath.Join(root, "top-level.txt"), "")

	folders, errs := LoadDir(root)
	if len(errs) != 0 {
		t.Fatalf("errs = %v", errs)
	}
	if len(folders) != 2 {
		t.Fatalf("folders = %+v, want 2", folders)
	}

	nightly := folders[0]
	if nightly.Name != "Nightly" || nightly.Source != filepath.Join("Nightly", "index.py") {
		t.Errorf("Nightly = %+v", nightly)
	}
	trig, _ := nightly.Configuration["trigger"].(map[string]any)
	if trig["schedule"] != "0 0 2 * * *" {
		t.Errorf("schedule = %v", trig["schedule"])
	}

	qw := folders[1]
	if qw.Name != "QueueWorker" || qw.Source != filepath.Join("QueueWorker", "run.js") {
		t.Errorf("QueueWorker = %+v", qw)
	}
	trig, _ = qw.Configuration["trigger"].(map[string]any)
	if trig["batchSize"] != float64(16) {
		t.Errorf("batchSize = %#v, want float64(16)", trig["batchSize"])
	}
}

func TestLoadDirCollectsFolderErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "BadJSON", "function.json"), `{"trigger":`)
	writeFile(t, filepath.Join(root, "BadJSON", "run.js"), "")
	writeFile(t, filepath.Join(root, "NoScript", "function.json"), `{"trigger":{"type":"queue"}}`)
	writeFile(t, filepath.Join(root, "Schema", "function.json"), `{"disabled":"yes"}`)
	writeFile(t, filepath.Join(root, "Schema", "run.js"), "")
	writeFile(t, filepath.Join(root, "Good", "function.json"), `{"trigger":{"type":"queue"}}`)
	writeFile(t, filepath.Join(root, "Good", "run.js"), "")

	folders, errs := LoadDir(root)
	if len(folders) != 1 || folders[0].Name != "Good" {
		t.Errorf("folders = %+v", folders)
	}
	if len(errs) != 3 {
		t.Fatalf("errs = %v, want 3", errs)
	}
	names := map[string]error{}
	for _, err := range errs {
		var fe *FolderError
		if !errors.As(err, &fe) {
			t.Fatalf("err %v is not a FolderError", err)
		}
		names[fe.Folder] = fe.Err
	}
	if !errors.Is(names["NoScript"], ErrNoSource) {
		t.Errorf("NoScript err = %v, want ErrNoSource", names["NoScript"])
	}
	if names["BadJSON"] == nil || names["Schema"] == nil {
		t.Errorf("errs = %v", names)
	}
}

func TestLoadDirMissingRoot(t *testing.T) {
	_, errs := LoadDir(filepath.Join(t.TempDir(), "missing"))
	if len(errs) != 1 {
		t.Fatalf("errs = %v, want 1", errs)
	}
}

func TestDetectSource(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		doc     string
		want    string
		wantErr bool
	}{
		{name: "explicit", files: []string{"main.py", "other.py"}, doc: `{"source":"main.py"}`, want: "main.py"},
		{name: "explicit nested", files: []string{"src/app.js"}, doc: `{"source":"src/app.js"}`, want: filepath.Join("src", "app.js")},
		{name: "explicit missing", files: []string{"run.js"}, doc: `{"source":"gone.js"}`, wantErr: true},
		{name: "explicit escapes", files: []string{"run.js"}, doc: `{"source":"../x.js"}`, wantErr: true},
		{name: "run wins", files: []string{"index.js", "run.ps1"}, doc: `{}`, want: "run.ps1"},
		{name: "index", files: []string{"index.php", "lib.php"}, doc: `{}`, want: "index.php"},
		{name: "single file", files: []string{"worker.lua"}, doc: `{}`, want: "worker.lua"},
		{name: "ambiguous", files: []string{"a.js", "b.js"}, doc: `{}`, wantErr: true},
		{name: "empty", doc: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "F", "function.json"), tt.doc)
			for _, f := range tt.files {
				writeFile(t, filepath.Join(root, "F", f), "")
			}
			info, ok, err := LoadFolder(root, "F")
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", info)
				}
				return
			}
			if err != nil || !ok {
				t.Fatalf("LoadFolder: ok=%v err=%v", ok, err)
			}
			if info.Source != filepath.Join("F", tt.want) {
				t.Errorf("Source = %q, want %q", info.Source, filepath.Join("F", tt.want))
			}
		})
	}
}

func TestParseDocument(t *testing.T) {
	cfg, err := ParseDocument([]byte("trigger:\n  type: http\n  methods: [get, post]\n"))
	if err != nil {
		t.Fatal(err)
	}
	trig := cfg["trigger"].(map[string]any)
	methods, _ := trig["methods"].([]any)
	if len(methods) != 2 || methods[0] != "get" {
		t.Errorf("methods = %v", trig["methods"])
	}

	if _, err := ParseDocument([]byte(`["not", "an", "object"]`)); err == nil {
		t.Error("expected error for array document")
	}
	if _, err := ParseDocument([]byte(`{"source": ""}`)); err == nil {
		t.Error("expected schema error for empty source")
	}
}

func TestWatcherDebouncesChanges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "A", "function.json"), `{}`)

	calls := make(chan struct{}, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := NewWatcher(root, 150*time.Millisecond, logger, func(context.Context) {
		calls <- struct{}{}
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 3; i++ {
		writeFile(t, filepath.Join(root, "A", "run.js"), "x")
	}

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no change callback")
	}
	select {
	case <-calls:
		t.Error("burst of writes should produce one callback")
	case <-time.After(400 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
