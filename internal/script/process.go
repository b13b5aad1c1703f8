package script

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/opentalon/funchost/internal/invocation"
)

// ProcessInvoker runs a script through an external interpreter. The
// trigger payload is written to stdin and stdout becomes the output.
type ProcessInvoker struct {
	command       []string
	scriptPath    string
	function      string
	configuration map[string]any
}

func NewProcessInvoker(command []string, scriptPath, function string, configuration map[string]any) *ProcessInvoker {
	return &ProcessInvoker{
		command:       append([]string(nil), command...),
		scriptPath:    scriptPath,
		function:      function,
		configuration: configuration,
	}
}

func (p *ProcessInvoker) ScriptPath() string { return p.scriptPath }

func (p *ProcessInvoker) Configuration() map[string]any { return p.configuration }

func (p *ProcessInvoker) Command() []string {
	return append(append([]string(nil), p.command...), p.scriptPath)
}

func (p *ProcessInvoker) Invoke(ctx context.Context, inv Invocation) (*Result, error) {
	inv = invocationDefaults(inv)
	args := p.Command()

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = filepath.Dir(p.scriptPath)
	cmd.Stdin = strings.NewReader(inv.Input)
	cmd.Env = append(os.Environ(),
		"FUNCTION_NAME="+p.function,
		"TRIGGER_NAME="+triggerName(p.configuration),
		"INVOCATION_ID="+invocation.ID(ctx),
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	// stderr lines are the script's log output
	sc := bufio.NewScanner(&stderr)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			inv.Logger.Info(line)
		}
	}
	if runErr != nil {
		return nil, fmt.Errorf("run %s: %w", filepath.Base(p.scriptPath), runErr)
	}

	return &Result{
		Output:   strings.TrimRight(stdout.String(), "\r\n"),
		Bindings: inv.Binder.Values(),
	}, nil
}
