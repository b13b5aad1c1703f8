package script

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opentalon/funchost/internal/invocation"
)

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0700); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLuaInvokerRun(t *testing.T) {
	path := writeScript(t, "run.lua", `
function run(input, log, binder)
  log("processing " .. input)
  binder.bind("outQueue", "done:" .. input)
  return string.upper(input)
end
`)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	inv := NewLuaInvoker(path, "QueueWorker", nil)
	res, err := inv.Invoke(context.Background(), Invocation{Input: "orders", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "ORDERS" {
		t.Errorf("output = %q, want ORDERS", res.Output)
	}
	if res.Bindings["outQueue"] != "done:orders" {
		t.Errorf("bindings = %v", res.Bindings)
	}
	if !strings.Contains(buf.String(), "processing orders") {
		t.Errorf("log output = %q", buf.String())
	}
	if !strings.Contains(buf.String(), "function=QueueWorker") {
		t.Errorf("log output missing function attr: %q", buf.String())
	}
}

func TestLuaInvokerNilReturn(t *testing.T) {
	path := writeScript(t, "run.lua", `function run(input, log, binder) end`)
	res, err := NewLuaInvoker(path, "Fn", nil).Invoke(context.Background(), Invocation{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "" {
		t.Errorf("output = %q, want empty", res.Output)
	}
}

func TestLuaInvokerErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"missing run", `function other() end`},
		{"run not a function", `run = 42`},
		{"syntax error", `function run(`},
		{"runtime error", `function run(input) error("boom") end`},
		{"table return", `function run(input) return {} end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeScript(t, "run.lua", tt.script)
			_, err := NewLuaInvoker(path, "Fn", nil).Invoke(context.Background(), Invocation{})
			if err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLuaInvokerOsModule(t *testing.T) {
	t.Setenv("FUNCHOST_TEST_GREETING", "hello")
	path := writeScript(t, "run.lua", `
local os = require("os")
function run(input)
  return os.getenv("FUNCHOST_TEST_GREETING") .. " " .. input
end
`)
	res, err := NewLuaInvoker(path, "Fn", nil).Invoke(context.Background(), Invocation{Input: "world"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "hello world" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestProcessInvokerRun(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := writeScript(t, "run.sh", `read payload
echo "log line" >&2
echo "$FUNCTION_NAME:$TRIGGER_NAME:$INVOCATION_ID:$payload"
`)
	cfg := map[string]any{"trigger": map[string]any{"type": "queue", "name": "msg"}}
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("function", "QueueWorker")

	inv := NewProcessInvoker([]string{"sh"}, path, "QueueWorker", cfg)
	ctx := invocation.WithID(context.Background(), "inv-7")
	res, err := inv.Invoke(ctx, Invocation{Input: "orders\n", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	if res.Output != "QueueWorker:msg:inv-7:orders" {
		t.Errorf("output = %q", res.Output)
	}
	if !strings.Contains(buf.String(), "log line") {
		t.Errorf("stderr not logged: %q", buf.String())
	}
	if n := strings.Count(buf.String(), "function=QueueWorker"); n != 1 {
		t.Errorf("function attribute logged %d times: %q", n, buf.String())
	}
}

func TestProcessInvokerFailure(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := writeScript(t, "fail.sh", "exit 3\n")
	_, err := NewProcessInvoker([]string{"sh"}, path, "Fn", nil).Invoke(context.Background(), Invocation{})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
}

func TestBinder(t *testing.T) {
	b := NewBinder()
	b.Bind("b", "2")
	b.Bind("a", "1")
	b.Bind("b", "3")

	if got := b.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v", got)
	}
	vals := b.Values()
	if vals["b"] != "3" {
		t.Errorf("b = %q, want 3", vals["b"])
	}
	vals["a"] = "changed"
	if b.Values()["a"] != "1" {
		t.Error("Values() should return a copy")
	}
}
