// Package session runs an instrumented interactive shell on a PTY. It
// writes the dialect's bootstrap files, spawns the shell with the PTY
// slave as its controlling terminal, relays the user's keystrokes in,
// and demultiplexes the shell's output: marker-free bytes go to the
// user's terminal untouched while decoded lifecycle events go to the
// configured consumer.
package session

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"github.com/shellmark/shellmark/pkg/decoder"
	"github.com/shellmark/shellmark/pkg/dialect"
	"github.com/shellmark/shellmark/pkg/marker"
)

// Consumer receives the decoded lifecycle stream. HandleEvent and
// CaptureOutput are called from the session's single read loop, in
// stream order: a command's output arrives between its START and END
// events.
type Consumer interface {
	HandleEvent(event marker.Event)
	CaptureOutput(p []byte)
}

// Config holds all session options.
type Config struct {
	// ShellPath is the shell executable. Defaults to $SHELL, falling
	// back to looking up the dialect's name on PATH.
	ShellPath string
	// Dialect selects the shell integration. Defaults to detection
	// from $SHELL.
	Dialect dialect.Dialect
	// Consumer receives events and captured output. Defaults to a
	// no-op consumer (the session still strips markers).
	Consumer Consumer
	// Stdin and Stdout are the user-facing terminal ends. Default to
	// the process's own.
	Stdin  *os.File
	Stdout *os.File
	// Verbose enables internal diagnostics on the standard logger.
	Verbose bool
}

// Option is a functional option for session configuration.
type Option func(*Config) error

// WithShell sets the shell executable path.
func WithShell(path string) Option {
	return func(c *Config) error {
		c.ShellPath = path
		return nil
	}
}

// WithDialect sets the shell integration explicitly.
func WithDialect(d dialect.Dialect) Option {
	return func(c *Config) error {
		if d == nil {
			return fmt.Errorf("dialect must not be nil")
		}
		c.Dialect = d
		return nil
	}
}

// WithConsumer sets the lifecycle event consumer.
func WithConsumer(consumer Consumer) Option {
	return func(c *Config) error {
		c.Consumer = consumer
		return nil
	}
}

// WithStdio sets the user-facing terminal files.
func WithStdio(stdin, stdout *os.File) Option {
	return func(c *Config) error {
		c.Stdin = stdin
		c.Stdout = stdout
		return nil
	}
}

// WithVerbose enables or disables verbose diagnostics.
func WithVerbose(verbose bool) Option {
	return func(c *Config) error {
		c.Verbose = verbose
		return nil
	}
}

// Session is a configured, not-yet-started shell session.
type Session struct {
	config *Config
}

// New creates a session from the provided options.
func New(opts ...Option) (*Session, error) {
	config := &Config{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if config.Dialect == nil {
		d, err := dialect.Detect()
		if err != nil {
			return nil, err
		}
		config.Dialect = d
		if config.ShellPath == "" {
			config.ShellPath = os.Getenv("SHELL")
		}
	}
	if config.ShellPath == "" {
		path, err := exec.LookPath(executableName(config.Dialect))
		if err != nil {
			return nil, fmt.Errorf("locate %s executable: %w", config.Dialect.Name(), err)
		}
		config.ShellPath = path
	}
	if config.Consumer == nil {
		config.Consumer = nopConsumer{}
	}

	return &Session{config: config}, nil
}

// Run is a convenience wrapper: configure a session and run it to
// completion.
func Run(opts ...Option) error {
	session, err := New(opts...)
	if err != nil {
		return err
	}
	return session.Run()
}

// Run spawns the shell and blocks until it exits. The session owns the
// user's terminal for the duration: stdin is switched to raw mode (and
// restored on return) so keystrokes reach the shell's line editor
// unmangled, and window size changes are propagated to the PTY.
func (s *Session) Run() error {
	config := s.config

	scratchDir, err := os.MkdirTemp("", "shellmark-*")
	if err != nil {
		return fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	launch, err := config.Dialect.Launch(config.ShellPath, scratchDir)
	if err != nil {
		return fmt.Errorf("prepare %s bootstrap: %w", config.Dialect.Name(), err)
	}

	master, slavePath, err := openPTY()
	if err != nil {
		return fmt.Errorf("allocate PTY: %w", err)
	}
	defer master.Close()

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open PTY slave %s: %w", slavePath, err)
	}

	cmd := exec.Command(launch.Args[0], launch.Args[1:]...)
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.Env = buildEnv(launch.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
		Ctty:    0, // fd 0 in child = slave PTY
	}

	if config.Verbose {
		log.Printf("Starting %s session: %s", config.Dialect.Name(), strings.Join(launch.Args, " "))
	}
	if err := cmd.Start(); err != nil {
		slave.Close()
		return fmt.Errorf("start shell: %w", err)
	}
	// Close slave in parent — the child has its own copy via fd 0/1/2.
	slave.Close()

	stdinFd := int(config.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		oldState, rawErr := term.MakeRaw(stdinFd)
		if rawErr != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("set terminal raw mode: %w", rawErr)
		}
		defer term.Restore(stdinFd, oldState)

		stopSignals := watchSignals(
			func() { _ = term.Restore(stdinFd, oldState) },
			func() { _ = cmd.Process.Signal(unix.SIGHUP) },
		)
		defer stopSignals()
	}

	stopResize := s.watchResize(master)
	defer stopResize()

	// Keystrokes → PTY. The goroutine unblocks when the process exits;
	// a read blocked on an interactive stdin simply never completes,
	// which is harmless since Run returning means the session is over.
	go func() {
		_, _ = io.Copy(master, config.Stdin)
	}()

	handler := &streamHandler{out: config.Stdout, consumer: config.Consumer}
	dec := decoder.New(handler)
	readBuffer := make([]byte, 4096)
	for {
		bytesRead, readErr := master.Read(readBuffer)
		if bytesRead > 0 {
			dec.Feed(readBuffer[:bytesRead])
		}
		if readErr != nil {
			// EIO is the normal signal that the slave closed (the
			// shell exited). Any other read error also ends the
			// session.
			break
		}
	}
	dec.Flush()

	if waitErr := cmd.Wait(); waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("shell exited with code %d", exitErr.ExitCode())
		}
		return fmt.Errorf("wait for shell: %w", waitErr)
	}
	return nil
}

// streamHandler fans the demultiplexed stream out to the user's
// terminal and the consumer. Terminal write errors are ignored: the
// session must never inject diagnostics into the output path.
type streamHandler struct {
	out      io.Writer
	consumer Consumer
}

func (h *streamHandler) HandleOutput(p []byte) {
	_, _ = h.out.Write(p)
	h.consumer.CaptureOutput(p)
}

func (h *streamHandler) HandleEvent(event marker.Event) {
	h.consumer.HandleEvent(event)
}

// nopConsumer drops everything; the session still strips markers.
type nopConsumer struct{}

func (nopConsumer) HandleEvent(marker.Event) {}
func (nopConsumer) CaptureOutput([]byte)     {}

// buildEnv extends the inherited environment with the dialect's launch
// entries, ensuring TERM is set so the shell behaves like a normal
// interactive session.
func buildEnv(extra []string) []string {
	env := append(os.Environ(), extra...)
	for _, entry := range env {
		// An empty TERM= counts as unset. exec.Cmd keeps the last
		// occurrence of a duplicated key, so appending overrides.
		if strings.HasPrefix(entry, "TERM=") && entry != "TERM=" {
			return env
		}
	}
	return append(env, "TERM=xterm-256color")
}

// executableName maps a dialect to the binary looked up on PATH when no
// shell path is configured.
func executableName(d dialect.Dialect) string {
	if d.Name() == dialect.NamePowerShell {
		return "pwsh"
	}
	return d.Name()
}
