package telnet

import (
	"context"
	"time"

	"samizdat/internal/channel"
)

// Negotiate offers binary both ways, server echo, SGA, NAWS and TTYPE, then
// waits up to ceiling for the peer to confirm binary. When the peer has
// agreed to NAWS or TTYPE it also waits for the first report of each.
// The ceiling always wins; the result then carries TimedOut.
func (c *Channel) Negotiate(ctx context.Context, ceiling time.Duration) channel.Negotiated {
	start := time.Now()
	conn := c.conn

	conn.SendDo(TransmitBinary)
	conn.SendWill(TransmitBinary)
	conn.SendWill(Echo)
	conn.SendWill(SGA)
	conn.SendDo(NAWS)
	conn.SendDo(TType)

	deadline := time.NewTimer(ceiling)
	defer deadline.Stop()

	timedOut := false
	for {
		// Take the channel before checking so a change in between still wakes us.
		changed := conn.Changed()
		if c.settled() || conn.Ended() {
			break
		}
		select {
		case <-changed:
			continue
		case <-deadline.C:
		case <-ctx.Done():
		}
		timedOut = true
		break
	}

	cols, rows := conn.WindowSize()
	result := channel.Negotiated{
		BinaryIn:     conn.IsRemoteOptionEnabled(TransmitBinary),
		BinaryOut:    conn.IsLocalOptionEnabled(TransmitBinary),
		NAWS:         conn.IsRemoteOptionEnabled(NAWS),
		Echo:         conn.IsLocalOptionEnabled(Echo),
		Cols:         cols,
		Rows:         rows,
		TerminalType: conn.TerminalType(),
		TimedOut:     timedOut,
		Elapsed:      time.Since(start),
	}

	conn.logger.Debug("Telnet negotiation finished",
		"binaryIn", result.BinaryIn,
		"binaryOut", result.BinaryOut,
		"naws", result.NAWS,
		"echo", result.Echo,
		"terminal", result.TerminalType,
		"timedOut", result.TimedOut,
		"elapsed", result.Elapsed,
	)
	return result
}

func (c *Channel) settled() bool {
	conn := c.conn
	if !conn.IsRemoteOptionEnabled(TransmitBinary) || !conn.IsLocalOptionEnabled(TransmitBinary) {
		return false
	}
	if conn.IsRemoteOptionEnabled(NAWS) {
		if cols, _ := conn.WindowSize(); cols == 0 {
			return false
		}
	}
	if conn.IsRemoteOptionEnabled(TType) && conn.TerminalType() == "" {
		return false
	}
	return true
}
