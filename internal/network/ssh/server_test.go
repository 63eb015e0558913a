package ssh_test

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	gossh "golang.org/x/crypto/ssh"

	"samizdat/internal/app"
	"samizdat/internal/config"
	"samizdat/internal/network"
	sshserver "samizdat/internal/network/ssh"
	"samizdat/internal/nodes"
	"samizdat/internal/session"
	"samizdat/internal/store"
)

var _ = Describe("Host keys", func() {
	It("generates a key the SSH library can parse", func() {
		key, err := sshserver.GenerateHostKey()
		Expect(err).NotTo(HaveOccurred())

		signer, err := gossh.ParsePrivateKey(key)
		Expect(err).NotTo(HaveOccurred())
		Expect(signer.PublicKey().Type()).To(Equal(gossh.KeyAlgoED25519))
	})

	It("writes a key once and leaves an existing one alone", func() {
		path := filepath.Join(GinkgoT().TempDir(), "keys", "host_ed25519")

		created, err := sshserver.WriteHostKey(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeTrue())
		first, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		created, err = sshserver.WriteHostKey(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(created).To(BeFalse())
		Expect(os.ReadFile(path)).To(Equal(first))
	})
})

var _ = Describe("Server", func() {
	var (
		a    *app.App
		addr string
	)

	BeforeEach(func() {
		var cfg config.Config
		cfg.ApplyDefaults()

		db, err := store.New(":memory:", true)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		Expect(db.CreateUser("sysop", "secret")).To(Succeed())

		a = &app.App{Config: &cfg, Logger: logger, Store: db, Nodes: nodes.NewManager(2)}

		// The runner reports who it got and then waits for the caller to leave.
		runner := network.RunnerFunc(func(ctx context.Context, sess *session.Session, node *nodes.Node) {
			caps := sess.Transport.Capabilities()
			sess.Transport.Writeline(fmt.Sprintf("%s %s %dx%d %s", node.Username(), sess.Kind(), caps.Cols, caps.Rows, caps.TerminalType))
			sess.Transport.ReadLine("", false, 10)
		})

		server := sshserver.NewServer(a, runner, "127.0.0.1:0")
		key, err := sshserver.GenerateHostKey()
		Expect(err).NotTo(HaveOccurred())
		Expect(server.HostKeyPEM(key)).To(Succeed())

		bound, err := server.Listen()
		Expect(err).NotTo(HaveOccurred())
		addr = bound.String()

		go func() {
			defer GinkgoRecover()
			Expect(server.Serve(context.Background())).To(Succeed())
		}()
		DeferCleanup(server.Stop)
	})

	dial := func(password string) (*gossh.Client, error) {
		return gossh.Dial("tcp", addr, &gossh.ClientConfig{
			User:            "sysop",
			Auth:            []gossh.AuthMethod{gossh.Password(password)},
			HostKeyCallback: gossh.InsecureIgnoreHostKey(),
			Timeout:         2 * time.Second,
		})
	}

	It("refuses a wrong password", func() {
		_, err := dial("wrong")
		Expect(err).To(HaveOccurred())
		Expect(a.Nodes.List()).To(BeEmpty())
	})

	It("attaches an authenticated user with the PTY size and terminal type", func() {
		client, err := dial("secret")
		Expect(err).NotTo(HaveOccurred())
		defer client.Close()

		sess, err := client.NewSession()
		Expect(err).NotTo(HaveOccurred())
		defer sess.Close()

		Expect(sess.RequestPty("ansi-bbs", 30, 100, gossh.TerminalModes{})).To(Succeed())
		stdout, err := sess.StdoutPipe()
		Expect(err).NotTo(HaveOccurred())
		stdin, err := sess.StdinPipe()
		Expect(err).NotTo(HaveOccurred())
		Expect(sess.Shell()).To(Succeed())

		line, err := bufio.NewReader(stdout).ReadString('\n')
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.TrimSpace(line)).To(Equal("sysop ssh 100x30 ansi-bbs"))

		Expect(sess.WindowChange(40, 120)).To(Succeed())
		Eventually(func() string {
			node := a.Nodes.Get(1)
			if node == nil {
				return ""
			}
			caps := node.Session.Transport.Capabilities()
			return fmt.Sprintf("%dx%d naws=%t", caps.Cols, caps.Rows, caps.NAWS)
		}).Should(Equal("120x40 naws=true"))

		_, err = io.WriteString(stdin, "bye\r")
		Expect(err).NotTo(HaveOccurred())
		Eventually(a.Nodes.List).Should(BeEmpty())
	})
})
