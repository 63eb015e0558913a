package shell_test

import (
	"context"
	"io"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"samizdat/internal/app"
	"samizdat/internal/channel"
	"samizdat/internal/config"
	"samizdat/internal/nodes"
	"samizdat/internal/session"
	"samizdat/internal/shell"
	"samizdat/internal/store"
)

var _ = Describe("Shell", func() {
	var (
		a    *app.App
		in   *io.PipeWriter
		out  *gbytes.Buffer
		sess *session.Session
		node *nodes.Node
		done chan struct{}
	)

	BeforeEach(func() {
		var cfg config.Config
		cfg.ApplyDefaults()
		cfg.General.BoardName = "Test BBS"

		db, err := store.New(":memory:", true)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(db.Close)
		Expect(db.CreateUser("sysop", "secret")).To(Succeed())

		a = &app.App{Config: &cfg, Logger: logger, Store: db, Nodes: nodes.NewManager(2)}

		var r *io.PipeReader
		r, in = io.Pipe()
		out = gbytes.NewBuffer()
		sess = session.New(channel.NewPipe(r, out, "test", 0, logger), cfg.Session, logger, nil)
		DeferCleanup(sess.Disconnect)

		node, err = a.Nodes.Acquire(sess)
		Expect(err).NotTo(HaveOccurred())
		done = make(chan struct{})
	})

	run := func() {
		go func() {
			defer close(done)
			shell.New(a, nil).Run(context.Background(), sess, node)
		}()
	}

	typeIn := func(s string) {
		go in.Write([]byte(s))
	}

	It("logs in, runs commands and logs off", func() {
		welcome := filepath.Join(GinkgoT().TempDir(), "welcome.ans")
		Expect(os.WriteFile(welcome, []byte{0xC9, 0xCD, 0xBB, '\n'}, 0o644)).To(Succeed())
		a.Config.General.Welcome = welcome

		run()
		Eventually(out).Should(gbytes.Say("╔═╗"))
		Eventually(out).Should(gbytes.Say("Welcome to Test BBS, node 1."))
		Eventually(out).Should(gbytes.Say("Username: "))

		typeIn("sysop\r")
		Eventually(out).Should(gbytes.Say("Password: "))
		typeIn("secret\r")
		Eventually(out).Should(gbytes.Say("Hello sysop."))
		Expect(string(out.Contents())).NotTo(ContainSubstring("secret"))

		typeIn("whoami\r")
		Eventually(out).Should(gbytes.Say("You are sysop on node 1."))

		typeIn("bogus\r")
		Eventually(out).Should(gbytes.Say(`Unknown command "bogus"`))

		typeIn("quit\r")
		Eventually(out).Should(gbytes.Say("Goodbye."))
		Eventually(done).Should(BeClosed())
		Expect(sess.State()).To(Equal(session.Disconnecting))

		user, err := a.Store.FindUserByUsername("sysop")
		Expect(err).NotTo(HaveOccurred())
		Expect(user.Logins).To(Equal(1))
	})

	It("gives up after too many failed attempts", func() {
		run()
		for i := 0; i < 3; i++ {
			Eventually(out).Should(gbytes.Say("Username: "))
			typeIn("sysop\r")
			Eventually(out).Should(gbytes.Say("Password: "))
			typeIn("guess\r")
			Eventually(out).Should(gbytes.Say("Login incorrect."))
		}
		Eventually(out).Should(gbytes.Say("Too many failed attempts."))
		Eventually(done).Should(BeClosed())
		Expect(node.User()).To(BeNil())
	})

	It("skips the login prompt for users authenticated by the transport", func() {
		user, err := a.Store.FindUserByUsername("sysop")
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Store.SetEncoding("sysop", "cp437")).To(Succeed())
		user.Encoding = "cp437"
		node.SetUser(user)

		run()
		Eventually(out).Should(gbytes.Say("Hello sysop."))
		Expect(string(out.Contents())).NotTo(ContainSubstring("Username:"))
		Expect(sess.Transport.Encoding()).To(Equal("cp437"))

		typeIn("quit\r")
		Eventually(done).Should(BeClosed())
	})

	It("returns when the caller hangs up", func() {
		run()
		Eventually(out).Should(gbytes.Say("Username: "))
		in.Close()
		Eventually(done).Should(BeClosed())
	})
})
