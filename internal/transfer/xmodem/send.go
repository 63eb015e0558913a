package xmodem

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Send transmits r to a receiver. size is only used for progress reports
// and may be 0. The final block is padded with SUB.
func (e *Engine) Send(ctx context.Context, r io.Reader, size int64) error {
	crc, err := e.awaitStart(ctx)
	if err != nil {
		return err
	}
	e.logger.Debug("XMODEM receiver ready", "crc", crc, "blockSize", e.blockSize)

	buf := make([]byte, e.blockSize)
	block := 1
	var sent int64

	for {
		n, rerr := io.ReadFull(r, buf)
		if n > 0 {
			for i := n; i < len(buf); i++ {
				buf[i] = SUB
			}
			if err := e.sendBlock(ctx, block, buf, crc); err != nil {
				return err
			}
			sent += int64(n)
			e.progress(Progress{Block: block, Bytes: sent, Total: size})
			block++
		}

		if errors.Is(rerr, io.EOF) || errors.Is(rerr, io.ErrUnexpectedEOF) {
			break
		}
		if rerr != nil {
			e.cancel()
			return newError(KindIO, block, fmt.Errorf("reading source: %w", rerr))
		}
	}

	return e.sendEOT(ctx)
}

// awaitStart waits for NAK (checksum) or 'C' (CRC) and reports which.
func (e *Engine) awaitStart(ctx context.Context) (bool, error) {
	for attempt := 0; attempt < e.startAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return false, newError(KindContext, 0, err)
		}

		b := e.port.ReadRaw(1, e.startTimeout)
		if b == nil {
			if e.portClosed() {
				return false, newError(KindIO, 0, io.ErrClosedPipe)
			}
			continue
		}

		switch b[0] {
		case CRC:
			return true, nil
		case NAK:
			return false, nil
		case CAN:
			return false, newError(KindCancelled, 0, nil)
		}
	}
	return false, newError(KindNoReceiver, 0, nil)
}

func (e *Engine) frame(block int, payload []byte, crc bool) []byte {
	header := SOH
	if len(payload) == BlockSize1K {
		header = STX
	}
	num := byte(block)

	frame := make([]byte, 0, 3+len(payload)+2)
	frame = append(frame, header, num, 0xFF-num)
	frame = append(frame, payload...)
	if crc {
		sum := CRC16(payload)
		frame = append(frame, byte(sum>>8), byte(sum))
	} else {
		frame = append(frame, Checksum(payload))
	}
	return frame
}

// sendBlock transmits one block until it is ACKed, retrying the same bytes
// up to maxRetries times.
func (e *Engine) sendBlock(ctx context.Context, block int, payload []byte, crc bool) error {
	frame := e.frame(block, payload, crc)

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			e.cancel()
			return newError(KindContext, block, err)
		}
		if attempt > 0 {
			e.retried()
			e.logger.Debug("XMODEM resending block", "block", block, "attempt", attempt+1)
		}

		if err := e.port.WriteRaw(frame); err != nil {
			return newError(KindIO, block, err)
		}

		reply := e.port.ReadRaw(1, e.timeout)
		if reply == nil {
			if e.portClosed() {
				return newError(KindIO, block, io.ErrClosedPipe)
			}
			continue
		}

		switch reply[0] {
		case ACK:
			return nil
		case CAN:
			return newError(KindCancelled, block, nil)
		}
	}

	e.cancel()
	return newError(KindRetriesExceeded, block, nil)
}

func (e *Engine) sendEOT(ctx context.Context) error {
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			e.cancel()
			return newError(KindContext, 0, err)
		}
		if err := e.port.WriteRaw([]byte{EOT}); err != nil {
			return newError(KindIO, 0, err)
		}

		reply := e.port.ReadRaw(1, e.timeout)
		if reply == nil {
			if e.portClosed() {
				return newError(KindIO, 0, io.ErrClosedPipe)
			}
			continue
		}
		switch reply[0] {
		case ACK:
			return nil
		case CAN:
			return newError(KindCancelled, 0, nil)
		}
	}
	return newError(KindEOTUnacknowledged, 0, nil)
}
