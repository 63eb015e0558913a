// Package ansi loads ANSI art screens and sends them to a session in the
// caller's encoding.
package ansi

import (
	"bytes"
	"fmt"
	"os"

	"samizdat/internal/charset"
	"samizdat/internal/session"
)

const Reset = "\x1b[0m"

// Screen is a CP437 art file with its SAUCE record removed and line endings
// normalised to CRLF.
type Screen struct {
	Sauce *Sauce
	Data  []byte
}

func Load(path string) (*Screen, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading screen: %w", err)
	}
	return Parse(raw), nil
}

func Parse(raw []byte) *Screen {
	sauce, _ := ParseSauce(raw)
	data := StripSauce(raw)
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\n"), []byte("\r\n"))
	return &Screen{Sauce: sauce, Data: data}
}

// Show writes the screen to t. CP437 callers get the bytes untouched;
// everyone else gets them transcoded through the session codec.
func (s *Screen) Show(t *session.Transport) {
	if t.Encoding() == "cp437" {
		t.WriteEncoded(s.Data)
	} else {
		cp437, _ := charset.Lookup("cp437")
		t.WriteString(cp437.Decode(s.Data))
	}
	t.WriteString(Reset)
}
