package session

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// openPTY allocates a PTY master/slave pair using the Linux devpts
// interface. Returns the master as an *os.File and the filesystem path
// to the slave.
func openPTY() (master *os.File, slavePath string, err error) {
	master, err = os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	ptyNumber, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("get PTY number (TIOCGPTN): %w", err)
	}

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("unlock PTY slave (TIOCSPTLCK): %w", err)
	}

	slavePath = fmt.Sprintf("/dev/pts/%d", ptyNumber)
	return master, slavePath, nil
}

// setWindowSize sets the terminal dimensions on a PTY master fd using
// TIOCSWINSZ. This propagates SIGWINCH to the foreground process group
// attached to the slave side.
func setWindowSize(fd int, columns, rows uint16) error {
	winsize := &unix.Winsize{
		Col: columns,
		Row: rows,
	}
	return unix.IoctlSetWinsize(fd, unix.TIOCSWINSZ, winsize)
}

// watchSignals runs restore and hangup when the host process is told to
// terminate, so an external SIGTERM or SIGHUP never leaves the user's
// terminal in raw mode: the terminal is put back first, then the shell
// is hung up, which closes the PTY slave and lets Run unwind through
// its normal cleanup path. Returns a stop function.
func watchSignals(restore, hangup func()) func() {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, unix.SIGTERM, unix.SIGHUP)
	done := make(chan struct{})
	go func() {
		select {
		case <-signalChannel:
			restore()
			hangup()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(signalChannel)
		close(done)
	}
}

// watchResize mirrors the user terminal's dimensions onto the PTY: once
// at startup and again on every SIGWINCH. Returns a stop function. When
// stdout is not a terminal (tests, pipes) it does nothing.
func (s *Session) watchResize(master *os.File) func() {
	outFd := int(s.config.Stdout.Fd())
	if !term.IsTerminal(outFd) {
		return func() {}
	}

	apply := func() {
		columns, rows, err := term.GetSize(outFd)
		if err != nil {
			return
		}
		_ = setWindowSize(int(master.Fd()), uint16(columns), uint16(rows))
	}
	apply()

	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel, unix.SIGWINCH)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-signalChannel:
				apply()
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(signalChannel)
		close(done)
	}
}
