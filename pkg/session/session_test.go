package session

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golang.org/x/sys/unix"

	"github.com/shellmark/shellmark/pkg/decoder"
	"github.com/shellmark/shellmark/pkg/dialect"
	"github.com/shellmark/shellmark/pkg/marker"
)

// recordingConsumer collects events and captured output for assertions.
type recordingConsumer struct {
	events []marker.Event
	output bytes.Buffer
}

func (c *recordingConsumer) HandleEvent(event marker.Event) {
	c.events = append(c.events, event)
}

func (c *recordingConsumer) CaptureOutput(p []byte) {
	c.output.Write(p)
}

func TestNew_ExplicitOptions(t *testing.T) {
	consumer := &recordingConsumer{}
	s, err := New(
		WithShell("/bin/bash"),
		WithDialect(dialect.Bash()),
		WithConsumer(consumer),
		WithVerbose(true),
	)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", s.config.ShellPath)
	assert.Equal(t, dialect.NameBash, s.config.Dialect.Name())
	assert.True(t, s.config.Verbose)
}

func TestNew_DetectsDialectFromShellEnv(t *testing.T) {
	t.Setenv("SHELL", "/usr/bin/zsh")
	s, err := New()
	require.NoError(t, err)
	assert.Equal(t, dialect.NameZsh, s.config.Dialect.Name())
	assert.Equal(t, "/usr/bin/zsh", s.config.ShellPath)
}

func TestNew_UnsupportedShellEnv(t *testing.T) {
	t.Setenv("SHELL", "/bin/tcsh")
	_, err := New()
	assert.Error(t, err)
}

func TestNew_NilDialectOption(t *testing.T) {
	_, err := New(WithDialect(nil))
	assert.Error(t, err)
}

func TestNew_DefaultConsumerIsNop(t *testing.T) {
	s, err := New(WithShell("/bin/bash"), WithDialect(dialect.Bash()))
	require.NoError(t, err)
	require.NotNil(t, s.config.Consumer)
	// Must not panic.
	s.config.Consumer.HandleEvent(marker.CommandEnd{ExitCode: 0})
	s.config.Consumer.CaptureOutput([]byte("x"))
}

func TestStreamHandler_SplitsOutputAndEvents(t *testing.T) {
	consumer := &recordingConsumer{}
	var terminal bytes.Buffer
	handler := &streamHandler{out: &terminal, consumer: consumer}

	dec := decoder.New(handler)
	dec.Feed([]byte("\x1b]6973;START;echo hi\x07hi\r\n\x1b]6973;END;0\x07\x1b]6973;PWD;/home/u\x07"))
	dec.Flush()

	// The terminal sees exactly what the shell printed, minus markers.
	assert.Equal(t, "hi\r\n", terminal.String())
	// The consumer sees the full lifecycle plus the command's output.
	require.Len(t, consumer.events, 3)
	assert.Equal(t, marker.CommandStart{Command: "echo hi"}, consumer.events[0])
	assert.Equal(t, marker.CommandEnd{ExitCode: 0}, consumer.events[1])
	assert.Equal(t, marker.WorkingDirectoryChanged{Path: "/home/u"}, consumer.events[2])
	assert.Equal(t, "hi\r\n", consumer.output.String())
}

func TestBuildEnv_SetsTermWhenMissing(t *testing.T) {
	t.Setenv("TERM", "")
	env := buildEnv(nil)
	assert.Contains(t, env, "TERM=xterm-256color")
}

func TestBuildEnv_KeepsExistingTerm(t *testing.T) {
	t.Setenv("TERM", "screen-256color")
	env := buildEnv(nil)
	assert.Contains(t, env, "TERM=screen-256color")
	assert.NotContains(t, env, "TERM=xterm-256color")
}

func TestBuildEnv_AppendsLaunchEntries(t *testing.T) {
	env := buildEnv([]string{"ZDOTDIR=/tmp/scratch"})
	assert.Contains(t, env, "ZDOTDIR=/tmp/scratch")
}

func TestExecutableName(t *testing.T) {
	assert.Equal(t, "bash", executableName(dialect.Bash()))
	assert.Equal(t, "zsh", executableName(dialect.Zsh()))
	assert.Equal(t, "pwsh", executableName(dialect.PowerShell()))
}

func TestWatchSignals_RestoresTerminalOnTermination(t *testing.T) {
	restored := make(chan struct{})
	hungUp := make(chan struct{})
	stop := watchSignals(
		func() { close(restored) },
		func() {
			// The terminal must be back in cooked mode before the
			// shell is hung up.
			select {
			case <-restored:
			default:
				t.Error("hangup ran before the terminal was restored")
			}
			close(hungUp)
		},
	)
	defer stop()

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGHUP))

	select {
	case <-hungUp:
	case <-time.After(2 * time.Second):
		t.Fatal("termination signal did not trigger terminal restore")
	}
}
