package modules

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"samizdat/internal/session"
	"samizdat/internal/store"
	"samizdat/internal/transfer/bridge"
	"samizdat/internal/transfer/xmodem"
)

var protocols = []string{"xmodem", "xmodem1k", "zmodem", "kermit"}

// TransferModule moves files between the caller and the file areas.
type TransferModule struct{}

func (m *TransferModule) Name() string {
	return "transfer"
}

func (m *TransferModule) Help() []string {
	return []string{
		"files                    list the download area",
		"download <proto> <file>  send a file to you",
		"upload <proto> [file]    receive files from you",
		"transfers                your recent transfers",
		"  protocols: " + strings.Join(protocols, ", "),
	}
}

func (m *TransferModule) HandleCommand(c *Context, cmd string, args string) (bool, error) {
	switch cmd {
	case "files":
		if err := area(c.Session, session.Files); err != nil {
			return true, err
		}
		m.list(c)
		return true, nil
	case "download", "dl":
		proto, name := splitArgs(args)
		if !known(proto) || name == "" {
			c.Println("Usage: download <" + strings.Join(protocols, "|") + "> <file>")
			return true, nil
		}
		return true, m.download(c, proto, name)
	case "upload", "ul":
		proto, name := splitArgs(args)
		if !known(proto) || (strings.HasPrefix(proto, "xmodem") && name == "") {
			c.Println("Usage: upload <" + strings.Join(protocols, "|") + "> [file]")
			c.Println("XMODEM uploads need a file name.")
			return true, nil
		}
		return true, m.upload(c, proto, name)
	case "transfers":
		m.recent(c)
		return true, nil
	}
	return false, nil
}

func splitArgs(args string) (string, string) {
	proto, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return strings.ToLower(proto), strings.TrimSpace(rest)
}

func known(proto string) bool {
	for _, p := range protocols {
		if p == proto {
			return true
		}
	}
	return false
}

func (m *TransferModule) list(c *Context) {
	root := c.App.Config.Transfers.DownloadRoot
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) == 0 {
		c.Println("The file area is empty.")
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			c.Printf("  %-32s %10s\r\n", entry.Name()+"/", "")
			continue
		}
		if info, err := entry.Info(); err == nil {
			c.Printf("  %-32s %10d\r\n", entry.Name(), info.Size())
		}
	}
}

func (m *TransferModule) recent(c *Context) {
	logs, err := c.App.Store.RecentTransfers(c.Node.Username(), 10)
	if err != nil {
		c.Logger.Warn("Failed to load transfer history", "err", err)
		c.Println("Transfer history is unavailable.")
		return
	}
	if len(logs) == 0 {
		c.Println("No transfers yet.")
		return
	}
	for _, l := range logs {
		result := "ok"
		if !l.Success {
			result = "failed"
		}
		c.Printf("  %s %-8s %-8s %-24s %8d %s\r\n", l.CreatedAt.Format("2006-01-02 15:04"), l.Direction, l.Protocol, l.Filename, l.Bytes, result)
	}
}

func (m *TransferModule) engine(c *Context, direction string, opts ...xmodem.Option) *xmodem.Engine {
	cfg := c.App.Config.Transfers
	base := []xmodem.Option{
		xmodem.WithTimeout(cfg.RawTimeout),
		xmodem.WithMaxRetries(cfg.Xmodem.MaxRetries),
		xmodem.WithStart(cfg.Xmodem.StartAttempts, cfg.Xmodem.StartTimeout),
		xmodem.WithLogger(c.Logger),
		xmodem.WithRetryHook(func() { c.App.Metrics.XmodemRetry(direction) }),
	}
	return xmodem.New(c.Session.Transport, append(base, opts...)...)
}

func (m *TransferModule) bridge(c *Context, proto string) *bridge.Bridge {
	cfg := c.App.Config.Transfers
	opts := []bridge.Option{
		bridge.WithRoots(cfg.DownloadRoot, cfg.UploadRoot),
		bridge.WithLogger(c.Logger),
	}
	if proto == "kermit" {
		return bridge.Kermit(cfg.Kermit.Path, opts...)
	}
	return bridge.Zmodem(cfg.Zmodem.Sz, cfg.Zmodem.Rz, opts...)
}

func blockSize(proto string) int {
	if proto == "xmodem1k" {
		return xmodem.BlockSize1K
	}
	return xmodem.BlockSize
}

func (m *TransferModule) download(c *Context, proto, name string) error {
	path, err := bridge.Contain(c.App.Config.Transfers.DownloadRoot, name)
	if errors.Is(err, bridge.ErrOutsideRoot) {
		c.Println("Access denied.")
		return nil
	}
	info, statErr := os.Stat(path)
	if err != nil || statErr != nil || info.IsDir() {
		c.Printf("File %q not found.\r\n", name)
		return nil
	}
	if err := area(c.Session, session.Files); err != nil {
		return err
	}

	c.Printf("Sending %s (%d bytes) by %s.\r\n", info.Name(), info.Size(), strings.ToUpper(proto))
	c.Printf("Start your %s receive now, or press Ctrl-X a few times to cancel.\r\n", strings.ToUpper(proto))

	if err := c.Session.BeginTransfer(); err != nil {
		return err
	}
	var terr error
	switch proto {
	case "xmodem", "xmodem1k":
		terr = m.sendXmodem(c, path, info.Size(), blockSize(proto))
	default:
		terr = m.bridge(c, proto).SendFile(c.Ctx, c.Session.Transport, path)
	}
	c.Session.EndTransfer()

	m.finish(c, proto, store.DirectionDownload, info.Name(), info.Size(), terr)
	return nil
}

func (m *TransferModule) sendXmodem(c *Context, path string, size int64, block int) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return m.engine(c, "send", xmodem.WithBlockSize(block)).Send(c.Ctx, f, size)
}

func (m *TransferModule) upload(c *Context, proto, name string) error {
	cfg := c.App.Config.Transfers
	if err := os.MkdirAll(cfg.UploadRoot, 0o755); err != nil {
		return fmt.Errorf("creating upload area: %w", err)
	}

	var dest string
	if name != "" {
		base := filepath.Base(name)
		if base == "." || base == ".." || base == string(filepath.Separator) {
			c.Println("Invalid file name.")
			return nil
		}
		var err error
		if dest, err = bridge.Contain(cfg.UploadRoot, base); err != nil {
			c.Println("Access denied.")
			return nil
		}
		if _, err := os.Stat(dest); err == nil {
			c.Printf("%s already exists.\r\n", base)
			return nil
		}
	}
	if err := area(c.Session, session.Files); err != nil {
		return err
	}

	c.Printf("Ready to receive by %s. Start your send now.\r\n", strings.ToUpper(proto))
	if err := c.Session.BeginTransfer(); err != nil {
		return err
	}

	var (
		terr     error
		received int64
		label    string
	)
	switch proto {
	case "xmodem", "xmodem1k":
		var data []byte
		data, terr = m.engine(c, "receive",
			xmodem.WithCRC(!cfg.Xmodem.Checksum),
			xmodem.WithMaxSize(cfg.MaxUploadSize),
		).Receive(c.Ctx)
		if terr == nil {
			terr = writeUpload(dest, data)
		}
		received, label = int64(len(data)), filepath.Base(dest)
	default:
		var files []string
		files, terr = m.bridge(c, proto).ReceiveFiles(c.Ctx, c.Session.Transport, ".")
		root, _ := bridge.Contain(cfg.UploadRoot, ".")
		for _, f := range files {
			if info, err := os.Stat(filepath.Join(root, f)); err == nil {
				received += info.Size()
			}
		}
		label = strings.Join(files, ",")
	}
	c.Session.EndTransfer()

	m.finish(c, proto, store.DirectionUpload, label, received, terr)
	return nil
}

func writeUpload(dest string, data []byte) error {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// finish reports the outcome to the caller, metrics and the transfer log.
func (m *TransferModule) finish(c *Context, proto, direction, name string, n int64, err error) {
	c.App.Metrics.Transfer(proto, direction, err, n)

	entry := &store.TransferLog{
		Username:  c.Node.Username(),
		Protocol:  proto,
		Direction: direction,
		Filename:  name,
		Bytes:     n,
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if lerr := c.App.Store.LogTransfer(entry); lerr != nil {
		c.Logger.Warn("Failed to log transfer", "err", lerr)
	}

	if err != nil {
		c.Logger.Info("Transfer failed", "protocol", proto, "direction", direction, "file", name, "err", err)
		c.Printf("\r\nTransfer failed: %v\r\n", err)
		return
	}
	c.Logger.Info("Transfer complete", "protocol", proto, "direction", direction, "file", name, "bytes", n)
	c.Printf("\r\nTransfer complete: %s, %d bytes.\r\n", name, n)
}
