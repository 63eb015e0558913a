package nodes_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"samizdat/internal/nodes"
	"samizdat/internal/session"
	"samizdat/internal/store"
)

var _ = Describe("Manager", func() {
	It("hands out the lowest free node and refuses when full", func() {
		m := nodes.NewManager(2)
		s1, _ := newSession()
		s2, _ := newSession()
		s3, _ := newSession()

		n1, err := m.Acquire(s1)
		Expect(err).NotTo(HaveOccurred())
		Expect(n1.ID).To(Equal(1))

		n2, err := m.Acquire(s2)
		Expect(err).NotTo(HaveOccurred())
		Expect(n2.ID).To(Equal(2))

		_, err = m.Acquire(s3)
		Expect(err).To(MatchError(nodes.ErrSystemFull))

		m.Release(1)
		n3, err := m.Acquire(s3)
		Expect(err).NotTo(HaveOccurred())
		Expect(n3.ID).To(Equal(1))
		Expect(m.Get(1).Session).To(BeIdenticalTo(s3))
	})

	It("lists occupied nodes in order", func() {
		m := nodes.NewManager(3)
		s1, _ := newSession()
		s2, _ := newSession()
		_, _ = m.Acquire(s1)
		n2, _ := m.Acquire(s2)
		m.Release(1)

		Expect(m.List()).To(ConsistOf(n2))
		Expect(m.Max()).To(Equal(3))
	})

	It("ignores out of range node ids", func() {
		m := nodes.NewManager(1)
		m.Release(7)
		Expect(m.Get(0)).To(BeNil())
	})

	It("broadcasts to logged-in nodes that are not transferring", func() {
		m := nodes.NewManager(4)
		login := func(s *session.Session, name string) *nodes.Node {
			n, err := m.Acquire(s)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Transition(session.Login)).To(Succeed())
			Expect(s.Transition(session.Authenticated)).To(Succeed())
			Expect(s.Transition(session.Menu)).To(Succeed())
			n.SetUser(&store.User{Username: name})
			return n
		}

		sender, senderOut := newSession()
		reader, readerOut := newSession()
		busy, busyOut := newSession()
		anon, anonOut := newSession()

		from := login(sender, "sysop")
		login(reader, "reader")
		login(busy, "busy")
		Expect(busy.BeginTransfer()).To(Succeed())
		_, _ = m.Acquire(anon)

		m.BroadcastExcept("*** Shutting down in 5 minutes", from.ID)

		Eventually(readerOut).Should(gbytes.Say(`Shutting down`))
		Consistently(func() string { return string(senderOut.Contents()) }, "100ms").ShouldNot(ContainSubstring("Shutting"))
		Expect(string(busyOut.Contents())).NotTo(ContainSubstring("Shutting"))
		Expect(string(anonOut.Contents())).NotTo(ContainSubstring("Shutting"))
	})
})

var _ = Describe("DisconnectAll", func() {
	It("hangs up every session", func() {
		m := nodes.NewManager(2)
		s1, out := newSession()
		s2, _ := newSession()
		_, _ = m.Acquire(s1)
		_, _ = m.Acquire(s2)

		m.DisconnectAll("Going down")

		Expect(s1.State()).To(Equal(session.Disconnecting))
		Expect(s2.Transport.Closed()).To(BeTrue())
		Expect(string(out.Contents())).To(ContainSubstring("Going down"))
	})
})
