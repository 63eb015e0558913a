package xmodem_test

import (
	"bytes"
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"samizdat/internal/transfer/xmodem"
)

func block(num byte, payload []byte, crc bool) []byte {
	padded := make([]byte, xmodem.BlockSize)
	copy(padded, payload)
	for i := len(payload); i < len(padded); i++ {
		padded[i] = xmodem.SUB
	}
	out := append([]byte{xmodem.SOH, num, 0xFF - num}, padded...)
	if crc {
		sum := xmodem.CRC16(padded)
		return append(out, byte(sum>>8), byte(sum))
	}
	return append(out, xmodem.Checksum(padded))
}

func payload(n int) []byte {
	r := rand.New(rand.NewSource(int64(n)))
	p := make([]byte, n)
	r.Read(p)
	if n > 0 && p[n-1] == xmodem.SUB {
		p[n-1] = 0x00
	}
	return p
}

func fast() []xmodem.Option {
	return []xmodem.Option{xmodem.WithTimeout(time.Second), xmodem.WithStart(5, 200*time.Millisecond)}
}

var _ = Describe("CRC16", func() {
	It("matches the XMODEM reference check value", func() {
		Expect(xmodem.CRC16([]byte("123456789"))).To(Equal(uint16(0x31C3)))
	})

	It("is zero for no input", func() {
		Expect(xmodem.CRC16(nil)).To(BeZero())
	})

	It("sums bytes modulo 256 for the checksum", func() {
		Expect(xmodem.Checksum([]byte{0xFF, 0x02})).To(Equal(byte(0x01)))
	})
})

var _ = Describe("Engine", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	// roundTrip runs a sender and a receiver against each other.
	roundTrip := func(data []byte, blockSize int, crc bool) ([]byte, error, error) {
		senderPort, receiverPort := linePair()
		sender := xmodem.New(senderPort, append(fast(), xmodem.WithBlockSize(blockSize))...)
		receiver := xmodem.New(receiverPort, append(fast(), xmodem.WithCRC(crc))...)

		sendErr := make(chan error, 1)
		go func() {
			sendErr <- sender.Send(ctx, bytes.NewReader(data), int64(len(data)))
		}()
		got, recvErr := receiver.Receive(ctx)
		return got, <-sendErr, recvErr
	}

	DescribeTable("round trips files",
		func(size, blockSize int, crc bool) {
			data := payload(size)
			got, sendErr, recvErr := roundTrip(data, blockSize, crc)
			Expect(sendErr).NotTo(HaveOccurred())
			Expect(recvErr).NotTo(HaveOccurred())
			if size == 0 {
				Expect(got).To(BeEmpty())
				return
			}
			Expect(got).To(Equal(data))
		},
		Entry("empty, CRC", 0, xmodem.BlockSize, true),
		Entry("one short block, checksum", 1, xmodem.BlockSize, false),
		Entry("exact block, CRC", 128, xmodem.BlockSize, true),
		Entry("block and a bit, checksum", 129, xmodem.BlockSize, false),
		Entry("many blocks past the 255 wrap, CRC", 128*300+7, xmodem.BlockSize, true),
		Entry("1K blocks, CRC", 5000, xmodem.BlockSize1K, true),
		Entry("1K blocks, checksum", 3*1024, xmodem.BlockSize1K, false),
	)

	It("sends a 300-byte file as three 128-byte blocks and one EOT", func() {
		senderPort, receiverPort := linePair()
		sender := xmodem.New(senderPort, fast()...)
		receiver := xmodem.New(receiverPort, fast()...)

		data := payload(300)
		done := make(chan error, 1)
		go func() { done <- sender.Send(ctx, bytes.NewReader(data), 300) }()

		got, err := receiver.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(<-done).To(Succeed())
		Expect(got).To(Equal(data))

		var blocks, eots int
		for _, w := range senderPort.Writes() {
			switch {
			case len(w) == 133 && w[0] == xmodem.SOH:
				blocks++
			case len(w) == 1 && w[0] == xmodem.EOT:
				eots++
			}
		}
		Expect(blocks).To(Equal(3))
		Expect(eots).To(Equal(1))
		Expect(receiverPort.count(xmodem.ACK)).To(Equal(4))
	})

	It("recovers from a corrupted CRC on block 2 with exactly one NAK", func() {
		senderPort, receiverPort := linePair()

		var corrupted int32
		var block2 [][]byte
		senderPort.tap = func(p []byte) []byte {
			if len(p) == 133 && p[1] == 2 {
				block2 = append(block2, append([]byte(nil), p...))
				if atomic.CompareAndSwapInt32(&corrupted, 0, 1) {
					p[len(p)-1] ^= 0xFF
				}
			}
			return p
		}

		sender := xmodem.New(senderPort, fast()...)
		receiver := xmodem.New(receiverPort, fast()...)

		data := payload(300)
		done := make(chan error, 1)
		go func() { done <- sender.Send(ctx, bytes.NewReader(data), 300) }()

		got, err := receiver.Receive(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(<-done).To(Succeed())
		Expect(got).To(Equal(data))

		Expect(receiverPort.count(xmodem.NAK)).To(Equal(1))
		Expect(block2).To(HaveLen(2))
		Expect(block2[1]).To(Equal(block2[0]))
	})

	Describe("receiver", func() {
		var (
			port     *memPort
			receiver *xmodem.Engine
		)

		BeforeEach(func() {
			port, _ = linePair()
			receiver = xmodem.New(port, xmodem.WithTimeout(50*time.Millisecond), xmodem.WithMaxRetries(3))
		})

		It("NAKs a block whose number and complement do not sum to 0xFF", func() {
			bad := block(1, []byte("hello"), true)
			bad[2] = 0x00
			port.feed(bad...)
			port.feed(block(1, []byte("hello"), true)...)
			port.feed(xmodem.EOT)

			got, err := receiver.Receive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]byte("hello")))
			Expect(port.count(xmodem.NAK)).To(Equal(1))
		})

		It("aborts on CAN without answering", func() {
			port.feed(xmodem.CAN)

			_, err := receiver.Receive(ctx)
			Expect(xmodem.IsCancelled(err)).To(BeTrue())
			Expect(port.Writes()).To(Equal([][]byte{{xmodem.CRC}}))
		})

		It("gives up after the consecutive failure budget", func() {
			_, err := receiver.Receive(ctx)
			Expect(xmodem.IsRetriesExceeded(err)).To(BeTrue())
			Expect(port.count(xmodem.CRC)).To(Equal(4))
			Expect(port.Writes()[len(port.Writes())-1]).To(Equal([]byte{xmodem.CAN, xmodem.CAN}))
		})

		It("resets the failure budget after every good block", func() {
			for i, text := range []string{"one", "two", "three"} {
				bad := block(byte(i+1), []byte(text), true)
				bad[10] ^= 0x01
				port.feed(bad...)
				port.feed(block(byte(i+1), []byte(text), true)...)
			}
			port.feed(block(4, []byte("four"), true)...)
			port.feed(xmodem.EOT)

			receiver = xmodem.New(port, xmodem.WithTimeout(50*time.Millisecond), xmodem.WithMaxRetries(2))
			got, err := receiver.Receive(ctx)
			Expect(err).NotTo(HaveOccurred())

			pad := func(s string) []byte {
				b := make([]byte, xmodem.BlockSize)
				copy(b, s)
				for i := len(s); i < len(b); i++ {
					b[i] = xmodem.SUB
				}
				return b
			}
			want := append(append(append(pad("one"), pad("two")...), pad("three")...), []byte("four")...)
			Expect(got).To(Equal(want))
		})

		It("acknowledges and drops a repeated block", func() {
			port.feed(block(1, []byte("once"), true)...)
			port.feed(block(1, []byte("once"), true)...)
			port.feed(xmodem.EOT)

			got, err := receiver.Receive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]byte("once")))
			Expect(port.count(xmodem.ACK)).To(Equal(3))
		})

		It("uses the checksum when asked to", func() {
			receiver = xmodem.New(port, xmodem.WithCRC(false), xmodem.WithTimeout(50*time.Millisecond))
			port.feed(block(1, []byte("sum"), false)...)
			port.feed(xmodem.EOT)

			got, err := receiver.Receive(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal([]byte("sum")))
			Expect(port.Writes()[0]).To(Equal([]byte{xmodem.NAK}))
		})

		It("cancels uploads over the size limit", func() {
			receiver = xmodem.New(port, xmodem.WithTimeout(50*time.Millisecond), xmodem.WithMaxSize(100))
			port.feed(block(1, payload(128), true)...)
			port.feed(block(2, payload(10), true)...)

			_, err := receiver.Receive(ctx)
			kind, ok := xmodem.KindOf(err)
			Expect(ok).To(BeTrue())
			Expect(kind).To(Equal(xmodem.KindTooLarge))
		})

		It("stops and cancels when the context ends", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			_, err := receiver.Receive(cctx)
			kind, _ := xmodem.KindOf(err)
			Expect(kind).To(Equal(xmodem.KindContext))
			Expect(port.Writes()).To(ContainElement([]byte{xmodem.CAN, xmodem.CAN}))
		})
	})

	Describe("sender", func() {
		var port *memPort

		BeforeEach(func() {
			port, _ = linePair()
		})

		It("retries one block up to its own limit, then aborts", func() {
			port.feed(xmodem.CRC, xmodem.NAK, xmodem.NAK, xmodem.NAK)
			retries := 0
			sender := xmodem.New(port,
				xmodem.WithTimeout(50*time.Millisecond),
				xmodem.WithMaxRetries(3),
				xmodem.WithRetryHook(func() { retries++ }),
			)

			err := sender.Send(ctx, bytes.NewReader(payload(10)), 10)
			Expect(xmodem.IsRetriesExceeded(err)).To(BeTrue())

			frames := 0
			for _, w := range port.Writes() {
				if len(w) == 133 {
					frames++
				}
			}
			Expect(frames).To(Equal(3))
			Expect(retries).To(Equal(2))
		})

		It("gives each block a fresh retry budget", func() {
			port.feed(xmodem.CRC, xmodem.NAK, xmodem.ACK, xmodem.NAK, xmodem.ACK, xmodem.ACK)
			sender := xmodem.New(port, xmodem.WithTimeout(50*time.Millisecond), xmodem.WithMaxRetries(2))

			Expect(sender.Send(ctx, bytes.NewReader(payload(200)), 200)).To(Succeed())
		})

		It("aborts immediately on CAN", func() {
			port.feed(xmodem.CRC, xmodem.CAN)
			sender := xmodem.New(port, fast()...)

			err := sender.Send(ctx, bytes.NewReader(payload(300)), 300)
			Expect(xmodem.IsCancelled(err)).To(BeTrue())
			Expect(port.Writes()).To(HaveLen(1))
		})

		It("gives up when no receiver starts", func() {
			sender := xmodem.New(port, xmodem.WithStart(3, 20*time.Millisecond))
			err := sender.Send(ctx, bytes.NewReader(payload(10)), 10)
			kind, _ := xmodem.KindOf(err)
			Expect(kind).To(Equal(xmodem.KindNoReceiver))
			Expect(port.Writes()).To(BeEmpty())
		})

		It("uses checksum mode when the receiver starts with NAK", func() {
			port.feed(xmodem.NAK, xmodem.ACK, xmodem.ACK)
			sender := xmodem.New(port, fast()...)

			Expect(sender.Send(ctx, bytes.NewReader([]byte("abc")), 3)).To(Succeed())
			Expect(port.Writes()[0]).To(Equal(block(1, []byte("abc"), false)))
		})

		It("reports an unacknowledged EOT", func() {
			port.feed(xmodem.CRC, xmodem.ACK)
			sender := xmodem.New(port, xmodem.WithTimeout(20*time.Millisecond), xmodem.WithMaxRetries(3))

			err := sender.Send(ctx, bytes.NewReader([]byte("x")), 1)
			kind, _ := xmodem.KindOf(err)
			Expect(kind).To(Equal(xmodem.KindEOTUnacknowledged))
			Expect(port.count(xmodem.EOT)).To(Equal(3))
		})

		It("reports progress after every block", func() {
			port.feed(xmodem.CRC, xmodem.ACK, xmodem.ACK, xmodem.ACK)
			var seen []xmodem.Progress
			sender := xmodem.New(port, append(fast(), xmodem.WithProgress(func(p xmodem.Progress) { seen = append(seen, p) }))...)

			Expect(sender.Send(ctx, bytes.NewReader(payload(200)), 200)).To(Succeed())
			Expect(seen).To(Equal([]xmodem.Progress{
				{Block: 1, Bytes: 128, Total: 200},
				{Block: 2, Bytes: 200, Total: 200},
			}))
		})
	})
})
