// Package dialect provides one shell integration per supported shell.
// Each integration script installs hooks into the shell's own extension
// points and drives the same two-state machine: IDLE until a real user
// command starts (emit START), RUNNING until the next prompt is about to
// be drawn (emit END with the normalized exit code, then PWD). A trigger
// firing in the wrong state is a no-op, so pipelines that fire the
// pre-execution hook once per stage, completion passes, and the hooks'
// own housekeeping never produce duplicate or orphan markers.
//
// Installation is idempotent: sourcing an integration script twice in
// the same session registers each hook exactly once.
package dialect

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shellmark/shellmark/pkg/marker"
)

// Supported dialect names.
const (
	NameBash       = "bash"
	NameZsh        = "zsh"
	NameFish       = "fish"
	NamePowerShell = "powershell"
)

// Launch describes how to start an interactive shell with the
// integration installed.
type Launch struct {
	// Args is the full argv, starting with the shell executable.
	Args []string
	// Env holds extra environment entries appended to the inherited
	// environment.
	Env []string
}

// Dialect adapts one shell's extension points to the marker protocol.
type Dialect interface {
	// Name returns the dialect name, e.g. "bash".
	Name() string

	// Script returns the integration script. Sourcing it into a running
	// session installs the hooks; sourcing it again is a no-op with
	// respect to registration.
	Script() string

	// Launch writes any bootstrap files the shell needs under
	// scratchDir (a private directory owned by the caller) and
	// describes how to start the shell so that the user's own
	// configuration loads first and the integration loads after it.
	Launch(shellPath, scratchDir string) (Launch, error)
}

// All returns every supported dialect.
func All() []Dialect {
	return []Dialect{Bash(), Zsh(), Fish(), PowerShell()}
}

// Lookup resolves a dialect by name.
func Lookup(name string) (Dialect, error) {
	switch name {
	case NameBash, "sh":
		return Bash(), nil
	case NameZsh:
		return Zsh(), nil
	case NameFish:
		return Fish(), nil
	case NamePowerShell, "pwsh":
		return PowerShell(), nil
	}
	return nil, fmt.Errorf("unsupported shell dialect: %s", name)
}

// Detect resolves the dialect for the user's login shell from $SHELL.
// An empty $SHELL falls back to bash.
func Detect() (Dialect, error) {
	name := filepath.Base(os.Getenv("SHELL"))
	if name == "" || name == "." {
		name = NameBash
	}
	return Lookup(name)
}

// renderScript substitutes the marker channel into a script template.
// Scripts reference the channel as @CHANNEL@ so the wire format has a
// single source of truth.
func renderScript(template string) string {
	return strings.ReplaceAll(template, "@CHANNEL@", strconv.Itoa(marker.Channel))
}

// writeBootstrap writes a bootstrap file under scratchDir with
// owner-only permissions and returns its path.
func writeBootstrap(scratchDir, name, content string) (string, error) {
	path := filepath.Join(scratchDir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return "", fmt.Errorf("write bootstrap %s: %w", name, err)
	}
	return path, nil
}
