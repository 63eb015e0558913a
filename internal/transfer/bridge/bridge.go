// Package bridge runs external transfer programs (sz/rz, C-Kermit) on a
// pseudo-terminal and shuttles their bytes to and from a session's raw path.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"syscall"
	"time"
)

var (
	ErrUnavailable = errors.New("transfer program not available")
	ErrHangup      = errors.New("connection lost during transfer")
)

const (
	copyChunk   = 4096
	defaultPoll = 100 * time.Millisecond
	exitGrace   = time.Second
	termGrace   = 5 * time.Second
)

// Port is the raw side of a session.
type Port interface {
	WriteRaw(p []byte) error
	ReadRaw(n int, timeout time.Duration) []byte
	RawBuffered() int
	Closed() bool
}

// CommandFunc builds the argv for one run. target is a file to send or the
// directory that receives uploads.
type CommandFunc func(target string) []string

type Bridge struct {
	Name string

	send    CommandFunc
	receive CommandFunc

	downloadRoot string
	uploadRoot   string
	poll         time.Duration
	logger       *slog.Logger
}

type Option func(*Bridge)

// WithRoots confines SendFile to download and ReceiveFiles to upload.
func WithRoots(download, upload string) Option {
	return func(b *Bridge) {
		b.downloadRoot = download
		b.uploadRoot = upload
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithPoll sets how long the inbound copy loop waits on the session before
// checking whether the program has finished.
func WithPoll(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.poll = d
		}
	}
}

func New(name string, send, receive CommandFunc, opts ...Option) *Bridge {
	b := &Bridge{
		Name:    name,
		send:    send,
		receive: receive,
		poll:    defaultPoll,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Zmodem drives lrzsz: sz for downloads, rz for uploads.
func Zmodem(sz, rz string, opts ...Option) *Bridge {
	return New("zmodem",
		func(path string) []string { return []string{sz, "-b", "-e", path} },
		func(string) []string { return []string{rz, "-b", "-e", "-r"} },
		opts...)
}

// Kermit drives C-Kermit in command mode.
func Kermit(path string, opts ...Option) *Bridge {
	const setup = "set file type binary, set transfer display none, set protocol kermit, set window 4, set file incomplete keep"
	return New("kermit",
		func(file string) []string {
			return []string{path, "-C", fmt.Sprintf("%s, set send packet-length 1000, send %s, exit", setup, file)}
		},
		func(string) []string {
			return []string{path, "-C", setup + ", set receive packet-length 1000, receive, exit"}
		},
		opts...)
}

// SendFile runs the send program for path, which must resolve inside the
// download root.
func (b *Bridge) SendFile(ctx context.Context, port Port, path string) error {
	resolved, err := Contain(b.downloadRoot, path)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(resolved), err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", filepath.Base(resolved))
	}
	return b.run(ctx, port, b.send(resolved), filepath.Dir(resolved))
}

// ReceiveFiles runs the receive program in dir, which must resolve inside
// the upload root, and returns the names of files it created or changed.
func (b *Bridge) ReceiveFiles(ctx context.Context, port Port, dir string) ([]string, error) {
	resolved, err := Contain(b.uploadRoot, dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(resolved, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}

	before := snapshot(resolved)
	runErr := b.run(ctx, port, b.receive(resolved), resolved)

	var changed []string
	for name, mod := range snapshot(resolved) {
		if prev, ok := before[name]; !ok || !prev.Equal(mod) {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed, runErr
}

func snapshot(dir string) map[string]time.Time {
	out := map[string]time.Time{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return out
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			out[entry.Name()] = info.ModTime()
		}
	}
	return out
}

// run starts argv on a fresh PTY and copies bytes both ways until the
// program exits, the session drops or ctx ends.
func (b *Bridge) run(ctx context.Context, port Port, argv []string, dir string) error {
	if len(argv) == 0 {
		return ErrUnavailable
	}
	bin, err := exec.LookPath(argv[0])
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, argv[0])
	}

	master, slave, err := openPTY()
	if err != nil {
		return fmt.Errorf("allocate PTY: %w", err)
	}

	cmd := exec.Command(bin, argv[1:]...)
	cmd.Dir = dir
	cmd.Stdin = slave
	cmd.Stdout = slave
	cmd.Stderr = slave
	cmd.SysProcAttr = procAttr()

	if err := cmd.Start(); err != nil {
		slave.Close()
		master.Close()
		return fmt.Errorf("start %s: %w", b.Name, err)
	}
	// The child holds its own copy.
	slave.Close()

	log := b.logger.With("protocol", b.Name, "pid", cmd.Process.Pid)
	log.Info("Transfer program started", "argv", argv)

	done := make(chan struct{})
	var doneOnce sync.Once
	finish := func() { doneOnce.Do(func() { close(done) }) }

	var hungUp bool
	var wg sync.WaitGroup

	// program → session
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer finish()
		buf := make([]byte, copyChunk)
		for {
			n, rerr := master.Read(buf)
			if n > 0 {
				if werr := port.WriteRaw(buf[:n]); werr != nil {
					return
				}
			}
			if rerr != nil {
				// EIO once every slave descriptor is closed.
				return
			}
		}
	}()

	// session → program
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			n := min(max(1, port.RawBuffered()), copyChunk)
			p := port.ReadRaw(n, b.poll)
			if p == nil {
				if port.Closed() {
					hungUp = true
					finish()
					return
				}
				continue
			}
			if _, werr := master.Write(p); werr != nil {
				return
			}
		}
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var waitErr error
	select {
	case <-done:
	case <-ctx.Done():
		finish()
	}

	select {
	case waitErr = <-exited:
	case <-time.After(exitGrace):
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case waitErr = <-exited:
		case <-time.After(termGrace):
			_ = cmd.Process.Kill()
			waitErr = <-exited
		}
	}

	master.Close()
	wg.Wait()

	switch {
	case ctx.Err() != nil:
		log.Info("Transfer program stopped", "reason", ctx.Err())
		return ctx.Err()
	case hungUp:
		log.Info("Transfer program stopped", "reason", "hangup")
		return ErrHangup
	case waitErr != nil:
		log.Warn("Transfer program failed", "error", waitErr)
		return fmt.Errorf("%s exited: %w", b.Name, waitErr)
	}
	log.Info("Transfer program finished")
	return nil
}
