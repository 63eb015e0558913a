package channel_test

import (
	"io"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"samizdat/internal/channel"
)

var _ = Describe("Buffers", func() {
	var buffers *channel.Buffers

	BeforeEach(func() {
		buffers = channel.NewBuffers(0, nil)
	})

	Context("ReadRaw", func() {
		It("returns exactly n bytes once enough have arrived", func() {
			buffers.Feed([]byte{1, 2, 3, 4, 5})

			data, err := buffers.ReadRaw(3, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{1, 2, 3}))
			Expect(buffers.Buffered()).To(Equal(2))
		})

		It("never returns a short read and keeps partial data queued on timeout", func() {
			buffers.Feed([]byte{0xAA, 0xBB})

			data, err := buffers.ReadRaw(4, 50*time.Millisecond)
			Expect(err).To(MatchError(channel.ErrTimeout))
			Expect(data).To(BeNil())
			Expect(buffers.Buffered()).To(Equal(2))

			buffers.Feed([]byte{0xCC, 0xDD})
			data, err = buffers.ReadRaw(4, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{0xAA, 0xBB, 0xCC, 0xDD}))
		})

		It("assembles a block fed in several chunks", func() {
			go func() {
				defer GinkgoRecover()
				for i := 0; i < 4; i++ {
					buffers.Feed([]byte{byte(i)})
					time.Sleep(5 * time.Millisecond)
				}
			}()

			data, err := buffers.ReadRaw(4, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte{0, 1, 2, 3}))
		})

		It("bounds the total wait by the caller's timeout despite repeated wake-ups", func() {
			stop := make(chan struct{})
			defer close(stop)
			go func() {
				for {
					select {
					case <-stop:
						return
					case <-time.After(10 * time.Millisecond):
						buffers.Feed([]byte{0})
					}
				}
			}()

			start := time.Now()
			_, err := buffers.ReadRaw(1000, 150*time.Millisecond)
			Expect(err).To(MatchError(channel.ErrTimeout))
			Expect(time.Since(start)).To(BeNumerically("<", 500*time.Millisecond))
		})

		It("reports EOF when the transport ends with insufficient data", func() {
			buffers.Feed([]byte{1})
			buffers.SetEOF()

			_, err := buffers.ReadRaw(2, time.Second)
			Expect(err).To(MatchError(io.EOF))
		})
	})

	Context("text and raw views", func() {
		It("are consumed independently", func() {
			buffers.Feed([]byte("hi\xff"))

			text, err := buffers.ReadText(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("hiÿ"))

			raw, err := buffers.ReadRaw(3, time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(raw).To(Equal([]byte("hi\xff")))
		})

		It("decodes every byte value to one character and back", func() {
			all := make([]byte, 256)
			for i := range all {
				all[i] = byte(i)
			}
			text := channel.DecodeWire(all)
			Expect([]rune(text)).To(HaveLen(256))
			Expect(channel.EncodeWire(text)).To(Equal(all))
		})

		It("drains buffered text before reporting EOF", func() {
			buffers.Feed([]byte("abc"))
			buffers.SetEOF()

			Expect(buffers.ReadText(2)).To(Equal("ab"))
			Expect(buffers.ReadText(2)).To(Equal("c"))
			_, err := buffers.ReadText(2)
			Expect(err).To(MatchError(io.EOF))
		})

		It("drops the oldest bytes once a view is over its limit", func() {
			small := channel.NewBuffers(4, nil)
			small.Feed([]byte("abcdef"))
			Expect(small.Buffered()).To(Equal(4))
			Expect(small.ReadText(10)).To(Equal("cdef"))
		})
	})

	Context("Shutdown", func() {
		It("wakes a blocked text reader", func() {
			done := make(chan error, 1)
			go func() {
				_, err := buffers.ReadText(1)
				done <- err
			}()

			Consistently(done, 50*time.Millisecond).ShouldNot(Receive())
			Expect(buffers.Shutdown()).To(BeTrue())
			Eventually(done).Should(Receive(MatchError(channel.ErrClosed)))
		})

		It("wakes a blocked raw reader immediately", func() {
			done := make(chan error, 1)
			go func() {
				_, err := buffers.ReadRaw(1, time.Minute)
				done <- err
			}()

			time.Sleep(20 * time.Millisecond)
			buffers.Shutdown()
			Eventually(done, 200*time.Millisecond).Should(Receive(MatchError(channel.ErrClosed)))
		})

		It("is idempotent", func() {
			Expect(buffers.Shutdown()).To(BeTrue())
			Expect(buffers.Shutdown()).To(BeFalse())
			Expect(buffers.Closed()).To(BeTrue())
		})
	})

	It("Purge empties both views", func() {
		buffers.Feed([]byte("junk"))
		buffers.Purge()
		Expect(buffers.Buffered()).To(BeZero())
		_, err := buffers.ReadRaw(1, 10*time.Millisecond)
		Expect(err).To(MatchError(channel.ErrTimeout))
	})
})
