// Package xmodem implements XMODEM and XMODEM-1K over a raw byte port, with
// either the 8-bit checksum or CRC-16.
//
// Block layout on the wire:
//
//	SOH|STX  block#  255-block#  payload(128|1024, SUB padded)  sum|crc-hi crc-lo
//
// Block numbers start at 1 and wrap modulo 256.
package xmodem

import (
	"io"
	"log/slog"
	"time"
)

const (
	SOH byte = 0x01
	STX byte = 0x02
	EOT byte = 0x04
	ACK byte = 0x06
	NAK byte = 0x15
	CAN byte = 0x18
	SUB byte = 0x1A
	CRC byte = 'C'
)

const (
	BlockSize   = 128
	BlockSize1K = 1024
)

// Port is the raw side of a session. ReadRaw returns exactly n bytes or nil.
// A port that also has Closed() bool lets the engine stop as soon as the
// line drops instead of running out its retries.
type Port interface {
	WriteRaw(p []byte) error
	ReadRaw(n int, timeout time.Duration) []byte
}

type closer interface {
	Closed() bool
}

// Progress is reported after every acknowledged block.
type Progress struct {
	Block int
	Bytes int64
	Total int64 // 0 when unknown
}

type Engine struct {
	port          Port
	blockSize     int
	crc           bool
	timeout       time.Duration
	maxRetries    int
	startAttempts int
	startTimeout  time.Duration
	maxSize       int64
	logger        *slog.Logger
	onProgress    func(Progress)
	onRetry       func()
}

type Option func(*Engine)

// WithBlockSize selects 128-byte blocks (SOH) or 1024-byte blocks (STX)
// when sending. Receivers accept both.
func WithBlockSize(n int) Option {
	return func(e *Engine) {
		if n == BlockSize1K {
			e.blockSize = BlockSize1K
		} else {
			e.blockSize = BlockSize
		}
	}
}

// WithCRC makes a receiver ask for CRC-16 ('C') instead of the checksum
// (NAK). Senders follow whatever the receiver asks for.
func WithCRC(on bool) Option {
	return func(e *Engine) { e.crc = on }
}

// WithTimeout sets the wait for each block-boundary read.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithStart sets how many times, and how long each time, a sender waits for
// the receiver's start byte.
func WithStart(attempts int, each time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.startAttempts = attempts
		}
		if each > 0 {
			e.startTimeout = each
		}
	}
}

// WithMaxSize limits how much a receiver accepts. Zero means no limit.
func WithMaxSize(n int64) Option {
	return func(e *Engine) { e.maxSize = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithProgress(fn func(Progress)) Option {
	return func(e *Engine) { e.onProgress = fn }
}

// WithRetryHook is called every time a block is retried or NAKed.
func WithRetryHook(fn func()) Option {
	return func(e *Engine) { e.onRetry = fn }
}

func New(port Port, opts ...Option) *Engine {
	e := &Engine{
		port:          port,
		blockSize:     BlockSize,
		crc:           true,
		timeout:       10 * time.Second,
		maxRetries:    10,
		startAttempts: 60,
		startTimeout:  time.Second,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) portClosed() bool {
	if c, ok := e.port.(closer); ok {
		return c.Closed()
	}
	return false
}

func (e *Engine) retried() {
	if e.onRetry != nil {
		e.onRetry()
	}
}

func (e *Engine) progress(p Progress) {
	if e.onProgress != nil {
		e.onProgress(p)
	}
}

// cancel tells the peer to stop. Errors are ignored: the transfer is over
// either way.
func (e *Engine) cancel() {
	_ = e.port.WriteRaw([]byte{CAN, CAN})
}

func checkLen(crc bool) int {
	if crc {
		return 2
	}
	return 1
}

func verify(payload, check []byte, crc bool) bool {
	if crc {
		sum := CRC16(payload)
		return check[0] == byte(sum>>8) && check[1] == byte(sum)
	}
	return check[0] == Checksum(payload)
}
