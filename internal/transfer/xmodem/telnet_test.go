package xmodem_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"samizdat/internal/network/telnet"
	"samizdat/internal/session"
	"samizdat/internal/transfer/xmodem"
)

var _ = Describe("Engine over telnet", func() {
	var (
		sender   *session.Transport
		receiver *session.Transport
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			defer GinkgoRecover()
			conn, err := ln.Accept()
			Expect(err).NotTo(HaveOccurred())
			accepted <- conn
		}()
		client, err := net.Dial("tcp", ln.Addr().String())
		Expect(err).NotTo(HaveOccurred())
		server := <-accepted

		sender = session.NewTransport(telnet.NewChannel(telnet.NewConnection(server, logger), 0, logger), "utf-8", 0, logger)
		receiver = session.NewTransport(telnet.NewChannel(telnet.NewConnection(client, logger), 0, logger), "utf-8", 0, logger)
		DeferCleanup(sender.Disconnect)
		DeferCleanup(receiver.Disconnect)
	})

	DescribeTable("moves IAC-heavy files intact",
		func(size, blockSize int) {
			data := payload(size)
			for i := 0; i < len(data)-1; i += 5 {
				data[i] = 0xFF
			}
			data[len(data)-1] = 0xFF

			ctx := context.Background()
			tx := xmodem.New(sender, append(fast(), xmodem.WithBlockSize(blockSize))...)
			rx := xmodem.New(receiver, append(fast(), xmodem.WithCRC(true))...)

			sendErr := make(chan error, 1)
			go func() {
				sendErr <- tx.Send(ctx, bytes.NewReader(data), int64(len(data)))
			}()

			got, err := rx.Receive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(<-sendErr).To(Succeed())
			Expect(bytes.Equal(got, data)).To(BeTrue())
		},
		Entry("128-byte blocks", 3000, xmodem.BlockSize),
		Entry("1K blocks", 5000, xmodem.BlockSize1K),
	)
})
