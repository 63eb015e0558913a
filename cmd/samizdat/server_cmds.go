package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"samizdat/internal/app"
	"samizdat/internal/network/ssh"
	"samizdat/internal/network/telnet"
	"samizdat/internal/shell"
)

const shutdownMessage = "The system is going down. Goodbye."

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the telnet and SSH listeners",
	Run:   runServer,
}

type listener interface {
	ListenAndServe(ctx context.Context) error
	Stop() error
}

func runServer(cmd *cobra.Command, args []string) {
	a := mustBoot(app.Options{Metrics: true})
	defer func() { a.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.Metrics != nil {
		go serveMetrics(ctx, a)
	}

	for {
		restart := make(chan struct{}, 1)
		watcher := watchConfig(a, restart)

		listeners := startListeners(ctx, a)
		if len(listeners.all) == 0 {
			a.Logger.Warn("No listeners enabled.")
		}

		select {
		case <-ctx.Done():
			a.Logger.Info("Shutting down...")
			listeners.stop()
			closeWatcher(watcher)
			a.Nodes.DisconnectAll(shutdownMessage)
			waitForNodes(a, 3*time.Second)
			return

		case <-restart:
			listeners.stop()
			closeWatcher(watcher)

			next, err := a.Reload()
			if err != nil {
				// Listeners come back up on the config already in use.
				a.Logger.Error("Failed to reload config", "err", err)
				continue
			}
			a = next
		}
	}
}

// waitForNodes gives disconnected sessions a moment to finish their
// bookkeeping before the store closes.
func waitForNodes(a *app.App, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for len(a.Nodes.List()) > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
}

type listenerSet struct {
	all []listener
	wg  sync.WaitGroup
}

func (ls *listenerSet) start(ctx context.Context, a *app.App, name string, l listener) {
	ls.all = append(ls.all, l)
	ls.wg.Add(1)
	go func() {
		defer ls.wg.Done()
		if err := l.ListenAndServe(ctx); err != nil {
			a.Logger.Error(name+" server stopped", "err", err)
		}
	}()
}

func (ls *listenerSet) stop() {
	for _, l := range ls.all {
		_ = l.Stop()
	}
	ls.wg.Wait()
}

func startListeners(ctx context.Context, a *app.App) *listenerSet {
	ls := &listenerSet{}
	runner := shell.New(a, nil)

	if a.Config.Listeners.SSH.Enabled {
		keyFile := a.Config.Listeners.SSH.KeyFile
		created, err := ssh.WriteHostKey(keyFile)
		switch {
		case err != nil:
			a.Logger.Error("SSH host key unavailable", "file", keyFile, "err", err)
		case created:
			a.Logger.Info("Generated SSH host key", "file", keyFile)
		}

		server := ssh.NewServer(a, runner, "")
		if err := server.HostKeyFile(keyFile); err != nil {
			a.Logger.Error("Failed to load SSH host key", "file", keyFile, "err", err)
		} else {
			ls.start(ctx, a, "SSH", server)
		}
	}

	if a.Config.Listeners.Telnet.Enabled {
		ls.start(ctx, a, "Telnet", telnet.NewServer(a, runner, ""))
	}
	return ls
}

// watchConfig signals restart when any loaded config file is written. It
// returns nil when hot reload is off or the watcher cannot start.
func watchConfig(a *app.App, restart chan<- struct{}) *fsnotify.Watcher {
	if !a.Config.HotReload {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.Logger.Error("Failed to create watcher", "err", err)
		return nil
	}
	for _, file := range a.Config.LoadedFiles {
		if err := watcher.Add(file); err != nil {
			a.Logger.Error("Failed to watch config file", "file", relative(file), "err", err)
		} else {
			a.Logger.Debug("Watching config file", "file", relative(file))
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) {
					continue
				}
				a.Logger.Info("Config file modified, reloading...", "file", relative(event.Name))
				select {
				case restart <- struct{}{}:
				default:
					// restart pending
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				a.Logger.Error("Watcher error", "err", err)
			}
		}
	}()
	return watcher
}

func closeWatcher(w *fsnotify.Watcher) {
	if w != nil {
		w.Close()
	}
}

// relative shortens path against the working directory for logging.
func relative(path string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, path); err == nil {
			return rel
		}
	}
	return path
}

func serveMetrics(ctx context.Context, a *app.App) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	srv := &http.Server{
		Addr:              a.Config.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("Metrics listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error("Metrics server stopped", "err", err)
	}
}
