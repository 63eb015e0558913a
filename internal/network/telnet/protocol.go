package telnet

import "fmt"

// Command bytes (RFC 854).
const (
	SE   byte = 240
	NOP  byte = 241
	DM   byte = 242
	BRK  byte = 243
	IP   byte = 244
	AO   byte = 245
	AYT  byte = 246
	EC   byte = 247
	EL   byte = 248
	GA   byte = 249
	SB   byte = 250
	WILL byte = 251
	WONT byte = 252
	DO   byte = 253
	DONT byte = 254
	IAC  byte = 255
)

// TTYPE sub-negotiation verbs (RFC 1091).
const (
	IS   byte = 0
	SEND byte = 1
)

// Options. The listener negotiates BINARY, ECHO, SGA, NAWS and TTYPE; the
// others are here so logs name what clients offer.
const (
	TransmitBinary byte = 0  // RFC 856
	Echo           byte = 1  // RFC 857
	SGA            byte = 3  // RFC 858
	Status         byte = 5  // RFC 859
	TimingMark     byte = 6  // RFC 860
	TType          byte = 24 // RFC 1091
	EOR            byte = 25 // RFC 885
	NAWS           byte = 31 // RFC 1073
	TerminalSpeed  byte = 32 // RFC 1079
	Linemode       byte = 34 // RFC 1184
	XDisplay       byte = 35 // RFC 1096
	NewEnviron     byte = 39 // RFC 1572
	Charset        byte = 42 // RFC 2066
)

func commandName(cmd byte) string {
	switch cmd {
	case SE:
		return "SE"
	case NOP:
		return "NOP"
	case DM:
		return "DM"
	case BRK:
		return "BRK"
	case IP:
		return "IP"
	case AO:
		return "AO"
	case AYT:
		return "AYT"
	case EC:
		return "EC"
	case EL:
		return "EL"
	case GA:
		return "GA"
	case SB:
		return "SB"
	case WILL:
		return "WILL"
	case WONT:
		return "WONT"
	case DO:
		return "DO"
	case DONT:
		return "DONT"
	case IAC:
		return "IAC"
	}
	return fmt.Sprintf("CMD(%d)", cmd)
}

func optionName(opt byte) string {
	switch opt {
	case TransmitBinary:
		return "BINARY"
	case Echo:
		return "ECHO"
	case SGA:
		return "SGA"
	case Status:
		return "STATUS"
	case TimingMark:
		return "TIMING-MARK"
	case TType:
		return "TTYPE"
	case EOR:
		return "EOR"
	case NAWS:
		return "NAWS"
	case TerminalSpeed:
		return "TSPEED"
	case Linemode:
		return "LINEMODE"
	case XDisplay:
		return "XDISPLOC"
	case NewEnviron:
		return "NEW-ENVIRON"
	case Charset:
		return "CHARSET"
	}
	return fmt.Sprintf("Unknown(%d)", opt)
}
