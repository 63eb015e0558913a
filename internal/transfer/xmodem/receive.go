package xmodem

import (
	"bytes"
	"context"
	"io"
	"time"
)

const flushQuiet = 100 * time.Millisecond

// Receive collects a file from a sender. Trailing SUB padding is stripped
// from the end of the result.
//
// Every failure (bad header, bad block number pair, bad checksum or CRC, a
// timeout) is answered with NAK and counted against one budget of
// consecutive failures, which resets whenever a block is accepted.
func (e *Engine) Receive(ctx context.Context) ([]byte, error) {
	start := NAK
	if e.crc {
		start = CRC
	}
	if err := e.port.WriteRaw([]byte{start}); err != nil {
		return nil, newError(KindIO, 0, err)
	}

	var data bytes.Buffer
	expected := byte(1)
	block := 1
	failures := 0
	started := false

	// fail answers a bad or missing block. Before the first block a timeout
	// repeats the start byte, since the sender may have missed it.
	fail := func(timedOut bool) error {
		failures++
		e.retried()
		reply := NAK
		if timedOut && !started {
			reply = start
		}
		if err := e.port.WriteRaw([]byte{reply}); err != nil {
			return newError(KindIO, block, err)
		}
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			e.cancel()
			return nil, newError(KindContext, block, err)
		}
		if failures >= e.maxRetries {
			e.cancel()
			return nil, newError(KindRetriesExceeded, block, nil)
		}

		header := e.port.ReadRaw(1, e.timeout)
		if header == nil {
			if e.portClosed() {
				return nil, newError(KindIO, block, io.ErrClosedPipe)
			}
			if err := fail(true); err != nil {
				return nil, err
			}
			continue
		}

		var size int
		switch header[0] {
		case EOT:
			if err := e.port.WriteRaw([]byte{ACK}); err != nil {
				return nil, newError(KindIO, block, err)
			}
			out := bytes.TrimRight(data.Bytes(), string(SUB))
			if e.maxSize > 0 && int64(len(out)) > e.maxSize {
				return nil, newError(KindTooLarge, block, nil)
			}
			return out, nil
		case CAN:
			return nil, newError(KindCancelled, block, nil)
		case SOH:
			size = BlockSize
		case STX:
			size = BlockSize1K
		default:
			e.flush()
			if err := fail(false); err != nil {
				return nil, err
			}
			continue
		}

		payload, num, ok := e.readBlock(size)
		if !ok {
			if e.portClosed() {
				return nil, newError(KindIO, block, io.ErrClosedPipe)
			}
			if err := fail(false); err != nil {
				return nil, err
			}
			continue
		}

		switch num {
		case expected:
		case expected - 1:
			if started {
				// The sender missed our ACK and repeated the block.
				if err := e.port.WriteRaw([]byte{ACK}); err != nil {
					return nil, newError(KindIO, block, err)
				}
				failures = 0
				continue
			}
			fallthrough
		default:
			e.logger.Debug("XMODEM block out of sequence", "got", num, "want", expected)
			if err := fail(false); err != nil {
				return nil, err
			}
			continue
		}

		if e.maxSize > 0 && int64(data.Len()) >= e.maxSize {
			e.cancel()
			return nil, newError(KindTooLarge, block, nil)
		}

		if err := e.port.WriteRaw([]byte{ACK}); err != nil {
			return nil, newError(KindIO, block, err)
		}
		data.Write(payload)
		e.progress(Progress{Block: block, Bytes: int64(data.Len())})

		started = true
		failures = 0
		expected++
		block++
	}
}

// readBlock reads the rest of a block after its header byte. It always
// consumes the whole block so a bad one leaves the line in sync.
func (e *Engine) readBlock(size int) ([]byte, byte, bool) {
	nums := e.port.ReadRaw(2, e.timeout)
	if nums == nil {
		return nil, 0, false
	}
	payload := e.port.ReadRaw(size, e.timeout)
	if payload == nil {
		return nil, 0, false
	}
	check := e.port.ReadRaw(checkLen(e.crc), e.timeout)
	if check == nil {
		return nil, 0, false
	}

	if nums[0]+nums[1] != 0xFF {
		e.logger.Debug("XMODEM bad block number pair", "num", nums[0], "complement", nums[1])
		return nil, 0, false
	}
	if !verify(payload, check, e.crc) {
		e.logger.Debug("XMODEM block failed verification", "num", nums[0], "crc", e.crc)
		return nil, 0, false
	}
	return payload, nums[0], true
}

// flush discards line noise until the sender goes quiet.
func (e *Engine) flush() {
	for i := 0; i < BlockSize1K+5; i++ {
		if e.port.ReadRaw(1, flushQuiet) == nil {
			return
		}
	}
}
