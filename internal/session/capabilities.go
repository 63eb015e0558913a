package session

// Capabilities describes what the caller's terminal can do. Defaults assume
// an 80x24 ANSI colour terminal with no binary mode and no RIP.
type Capabilities struct {
	Cols         int
	Rows         int
	TerminalType string
	Encoding     string
	ANSI         bool
	Color        bool
	NAWS         bool // window size reported by the client
	Echo         bool // server-side echo agreed
	Binary       bool
	RIP          bool
	SevenBit     bool
	FlowControl  bool // XON/XOFF
}

func DefaultCapabilities() Capabilities {
	return Capabilities{
		Cols:     80,
		Rows:     24,
		Encoding: "utf-8",
		ANSI:     true,
		Color:    true,
	}
}
