// Package ptyio allocates a real pseudo-terminal pair and spawns a shell
// process attached to its slave end.
//
// No off-the-shelf PTY library appears anywhere in the retrieval pack, so
// this is hand-rolled directly against golang.org/x/sys/unix ioctls --
// the same ioctl family cboone-crawler's internal/testbin/main.go already
// used (via raw syscall+unsafe.Pointer) to read the controlling
// terminal's window size. See DESIGN.md.
package ptyio

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// PTY is an open pseudo-terminal pair with a child process attached to
// the slave side.
type PTY struct {
	Master *os.File
	cmd    *exec.Cmd
}

// Size is a terminal's dimensions in character cells.
type Size struct {
	Rows    int
	Columns int
}

// Spawn opens a new PTY, sets its initial size, and starts shellPath as a
// child process with the slave as its controlling terminal, stdin,
// stdout and stderr.
func Spawn(shellPath string, args []string, size Size, env []string, dir string) (*PTY, error) {
	master, slavePath, err := open()
	if err != nil {
		return nil, fmt.Errorf("ptyio: spawn: %w", err)
	}
	if err := setSize(master, size); err != nil {
		master.Close()
		return nil, fmt.Errorf("ptyio: spawn: set size: %w", err)
	}

	slave, err := os.OpenFile(slavePath, os.O_RDWR, 0)
	if err != nil {
		master.Close()
		return nil, fmt.Errorf("ptyio: spawn: open slave: %w", err)
	}
	defer slave.Close()

	cmd := exec.Command(shellPath, args...)
	cmd.Env = env
	cmd.Dir = dir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid:  true,
		Setctty: true,
	}

	if err := cmd.Start(); err != nil {
		master.Close()
		return nil, fmt.Errorf("ptyio: spawn: start %s: %w", shellPath, err)
	}

	return &PTY{Master: master, cmd: cmd}, nil
}

// open allocates a PTY master/slave pair via /dev/ptmx, returning the
// master file and the slave device path. Linux-specific (TIOCGPTN,
// TIOCSPTLCK); spec.md's Non-goals don't require portability beyond
// process isolation.
func open() (*os.File, string, error) {
	master, err := os.OpenFile("/dev/ptmx", os.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, "", fmt.Errorf("open /dev/ptmx: %w", err)
	}

	fd := int(master.Fd())

	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		master.Close()
		return nil, "", fmt.Errorf("TIOCSPTLCK: %w", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		master.Close()
		return nil, "", fmt.Errorf("TIOCGPTN: %w", err)
	}

	return master, fmt.Sprintf("/dev/pts/%d", n), nil
}

// setSize propagates a window-size change to the PTY via TIOCSWINSZ.
func setSize(master *os.File, size Size) error {
	ws := &unix.Winsize{
		Row: uint16(size.Rows),
		Col: uint16(size.Columns),
	}
	return unix.IoctlSetWinsize(int(master.Fd()), unix.TIOCSWINSZ, ws)
}

// Resize propagates a window-size change and sends SIGWINCH to the child
// process.
func (p *PTY) Resize(size Size) error {
	if err := setSize(p.Master, size); err != nil {
		return fmt.Errorf("ptyio: resize: %w", err)
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGWINCH)
	}
	return nil
}

// Pid returns the child process id.
func (p *PTY) Pid() int {
	if p.cmd.Process == nil {
		return -1
	}
	return p.cmd.Process.Pid
}

// Wait blocks until the child exits and returns its exit code.
func (p *PTY) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Kill terminates the child's whole process group and releases the
// master fd.
func (p *PTY) Kill() error {
	if p.cmd.Process != nil {
		_ = syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL)
	}
	return p.Master.Close()
}
