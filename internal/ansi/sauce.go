package ansi

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// A SAUCE record is the last 128 bytes of a file. Comment lines, when there
// are any, sit in front of it as "COMNT" followed by 64 bytes per line.
const (
	sauceLen     = 128
	commentLen   = 64
	commentCount = 104 // offset of the comment line count
)

var (
	sauceID   = []byte("SAUCE")
	commentID = []byte("COMNT")

	ErrNoSauce = errors.New("no SAUCE record found")
)

type Sauce struct {
	Title    string
	Author   string
	Group    string
	Date     string // YYYYMMDD
	DataType byte
	FileType byte
	Width    uint16 // TInfo1: columns for character art
	Height   uint16 // TInfo2
	Comments []string
}

func record(data []byte) ([]byte, bool) {
	if len(data) < sauceLen {
		return nil, false
	}
	rec := data[len(data)-sauceLen:]
	return rec, bytes.HasPrefix(rec, sauceID)
}

// StripSauce removes a trailing SAUCE record, its comment block and the
// EOF (0x1A) marker in front of them.
func StripSauce(data []byte) []byte {
	rec, ok := record(data)
	if !ok {
		return data
	}

	trim := sauceLen
	if n := int(rec[commentCount]); n > 0 {
		trim += len(commentID) + commentLen*n
	}
	if trim > len(data) {
		return nil
	}

	end := len(data) - trim
	if end > 0 && data[end-1] == 0x1A {
		end--
	}
	return data[:end]
}

func field(b []byte) string {
	return string(bytes.TrimRight(b, "\x00 "))
}

func ParseSauce(data []byte) (*Sauce, error) {
	rec, ok := record(data)
	if !ok {
		return nil, ErrNoSauce
	}

	s := &Sauce{
		Title:    field(rec[7:42]),
		Author:   field(rec[42:62]),
		Group:    field(rec[62:82]),
		Date:     field(rec[82:90]),
		DataType: rec[94],
		FileType: rec[95],
		Width:    binary.LittleEndian.Uint16(rec[96:98]),
		Height:   binary.LittleEndian.Uint16(rec[98:100]),
	}

	n := int(rec[commentCount])
	start := len(data) - sauceLen - len(commentID) - commentLen*n
	if n > 0 && start >= 0 && bytes.HasPrefix(data[start:], commentID) {
		block := data[start+len(commentID):]
		for i := 0; i < n; i++ {
			s.Comments = append(s.Comments, field(block[i*commentLen:(i+1)*commentLen]))
		}
	}
	return s, nil
}
