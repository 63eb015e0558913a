package telnet_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"samizdat/internal/network/telnet"
)

func drain(connection *telnet.Connection) {
	go func() {
		defer GinkgoRecover()
		buf := make([]byte, 1024)
		for {
			if _, err := connection.Read(buf); err != nil {
				return
			}
		}
	}()
}

var _ = Describe("Telnet Protocol", func() {
	var (
		serverConn net.Conn
		clientConn net.Conn
		connection *telnet.Connection
	)

	BeforeEach(func() {
		serverConn, clientConn = net.Pipe()
		connection = telnet.NewConnection(serverConn, logger)

		// Set deadlines to prevent infinite hangs
		serverConn.SetDeadline(time.Now().Add(2 * time.Second))
		clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	})

	AfterEach(func() {
		connection.Close()
		clientConn.Close()
	})

	Context("Negotiation", func() {
		It("should respond to DO ECHO with WILL ECHO", func() {
			drain(connection)

			_, err := clientConn.Write([]byte{telnet.IAC, telnet.DO, telnet.Echo})
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 1024)
			n, err := clientConn.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte{telnet.IAC, telnet.WILL, telnet.Echo}))

			Eventually(func() bool {
				return connection.IsLocalOptionEnabled(telnet.Echo)
			}).Should(BeTrue())
		})

		It("should respond to WILL NAWS with DO NAWS", func() {
			drain(connection)

			_, err := clientConn.Write([]byte{telnet.IAC, telnet.WILL, telnet.NAWS})
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 1024)
			n, err := clientConn.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte{telnet.IAC, telnet.DO, telnet.NAWS}))

			Eventually(func() bool {
				return connection.IsRemoteOptionEnabled(telnet.NAWS)
			}).Should(BeTrue())
		})

		It("should refuse options it does not support", func() {
			drain(connection)

			_, err := clientConn.Write([]byte{telnet.IAC, telnet.WILL, telnet.Linemode})
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 1024)
			n, err := clientConn.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte{telnet.IAC, telnet.DONT, telnet.Linemode}))
		})

		It("should handle AYT command", func() {
			drain(connection)

			_, err := clientConn.Write([]byte{telnet.IAC, telnet.AYT})
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 1024)
			n, err := clientConn.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte("\r\n[Yes]\r\n")))
		})
	})

	Context("Sub-negotiation", func() {
		It("should parse NAWS data", func() {
			drain(connection)

			resized := make(chan [2]int, 1)
			connection.OnResize(func(cols, rows int) { resized <- [2]int{cols, rows} })

			// IAC SB NAWS 0 80 0 24 IAC SE
			_, err := clientConn.Write([]byte{
				telnet.IAC, telnet.SB, telnet.NAWS,
				0, 80, 0, 24,
				telnet.IAC, telnet.SE,
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(resized).Should(Receive(Equal([2]int{80, 24})))
			cols, rows := connection.WindowSize()
			Expect(cols).To(Equal(80))
			Expect(rows).To(Equal(24))
		})

		It("should undouble IAC inside sub-negotiation data", func() {
			drain(connection)

			// width 0x00FF is sent as 0 IAC IAC
			_, err := clientConn.Write([]byte{
				telnet.IAC, telnet.SB, telnet.NAWS,
				0, telnet.IAC, telnet.IAC, 0, 40,
				telnet.IAC, telnet.SE,
			})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int {
				cols, _ := connection.WindowSize()
				return cols
			}).Should(Equal(255))
		})

		It("should reassemble a sub-negotiation split across reads", func() {
			drain(connection)

			_, err := clientConn.Write([]byte{telnet.IAC, telnet.SB, telnet.NAWS, 0})
			Expect(err).NotTo(HaveOccurred())
			_, err = clientConn.Write([]byte{100, 0, 50, telnet.IAC})
			Expect(err).NotTo(HaveOccurred())
			_, err = clientConn.Write([]byte{telnet.SE})
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() [2]int {
				cols, rows := connection.WindowSize()
				return [2]int{cols, rows}
			}).Should(Equal([2]int{100, 50}))
		})

		It("should lowercase the reported terminal type", func() {
			drain(connection)

			_, err := clientConn.Write(append(append([]byte{telnet.IAC, telnet.SB, telnet.TType, telnet.IS},
				[]byte("XTERM-256COLOR")...), telnet.IAC, telnet.SE))
			Expect(err).NotTo(HaveOccurred())

			Eventually(connection.TerminalType).Should(Equal("xterm-256color"))
		})
	})

	Context("Data", func() {
		It("should pass data around commands and undouble IAC", func() {
			go func() {
				defer GinkgoRecover()
				clientConn.Write([]byte{'a', telnet.IAC, telnet.NOP, 'b', telnet.IAC, telnet.IAC, 'c'})
			}()

			var got []byte
			buf := make([]byte, 16)
			for len(got) < 4 {
				n, err := connection.Read(buf)
				Expect(err).NotTo(HaveOccurred())
				got = append(got, buf[:n]...)
			}
			Expect(got).To(Equal([]byte{'a', 'b', telnet.IAC, 'c'}))
		})

		It("should double IAC on write", func() {
			go func() {
				defer GinkgoRecover()
				connection.Write([]byte{1, telnet.IAC, 2})
			}()

			buf := make([]byte, 16)
			n, err := clientConn.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(buf[:n]).To(Equal([]byte{1, telnet.IAC, telnet.IAC, 2}))
		})
	})
})
