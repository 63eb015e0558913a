// Package charset maps encoding names to codecs and converts between
// application text and the bytes a caller's terminal expects.
package charset

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const UTF8 = "utf-8"

type Codec struct {
	Name  string
	Label string
	enc   encoding.Encoding
}

var catalogue = []*Codec{
	{Name: UTF8, Label: "UTF-8", enc: xunicode.UTF8},
	{Name: "cp437", Label: "CP437 (DOS)", enc: charmap.CodePage437},
	{Name: "cp866", Label: "CP866 (DOS Cyrillic)", enc: charmap.CodePage866},
	{Name: "iso-8859-1", Label: "ISO-8859-1 (Latin-1)", enc: charmap.ISO8859_1},
	{Name: "iso-8859-2", Label: "ISO-8859-2 (Central European)", enc: charmap.ISO8859_2},
	{Name: "iso-8859-5", Label: "ISO-8859-5 (Cyrillic)", enc: charmap.ISO8859_5},
	{Name: "iso-8859-7", Label: "ISO-8859-7 (Greek)", enc: charmap.ISO8859_7},
	{Name: "koi8-r", Label: "KOI8-R (Russian)", enc: charmap.KOI8R},
	{Name: "windows-1251", Label: "Windows-1251 (Cyrillic)", enc: charmap.Windows1251},
	{Name: "windows-1252", Label: "Windows-1252 (Western)", enc: charmap.Windows1252},
	{Name: "macintosh", Label: "MacRoman", enc: charmap.Macintosh},
	{Name: "shift_jis", Label: "Shift_JIS (Japanese)", enc: japanese.ShiftJIS},
}

var aliases = map[string]string{
	"utf8":    UTF8,
	"ibm437":  "cp437",
	"ibm866":  "cp866",
	"latin1":  "iso-8859-1",
	"latin-1": "iso-8859-1",
	"cp1251":  "windows-1251",
	"cp1252":  "windows-1252",
	"mac":     "macintosh",
	"sjis":    "shift_jis",
}

// Catalogue lists the codecs offered to callers, in menu order.
func Catalogue() []*Codec {
	out := make([]*Codec, len(catalogue))
	copy(out, catalogue)
	return out
}

func Default() *Codec {
	return catalogue[0]
}

// Lookup finds a codec by name or alias. Names the catalogue does not carry
// are tried against the IANA registry.
func Lookup(name string) (*Codec, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, false
	}
	if canonical, ok := aliases[key]; ok {
		key = canonical
	}
	for _, c := range catalogue {
		if c.Name == key {
			return c, true
		}
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil || enc == nil {
		return nil, false
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = key
	}
	return &Codec{Name: strings.ToLower(canonical), Label: canonical, enc: enc}, true
}

// Resolve is Lookup with a UTF-8 fallback for unknown names.
func Resolve(name string) *Codec {
	if c, ok := Lookup(name); ok {
		return c
	}
	return Default()
}

func (c *Codec) String() string { return c.Name }

// Encode converts s to bytes. Characters the codec cannot represent become '?'.
func (c *Codec) Encode(s string) []byte {
	if c.Name == UTF8 {
		return []byte(strings.ToValidUTF8(s, "\uFFFD"))
	}

	out := make([]byte, 0, len(s))
	if cm, ok := c.enc.(*charmap.Charmap); ok {
		for _, r := range s {
			b, ok := cm.EncodeRune(r)
			if !ok {
				b = '?'
			}
			out = append(out, b)
		}
		return out
	}

	enc := c.enc.NewEncoder()
	var buf [utf8.UTFMax]byte
	for _, r := range s {
		n := utf8.EncodeRune(buf[:], r)
		b, err := enc.Bytes(buf[:n])
		if err != nil || len(b) == 0 {
			out = append(out, '?')
			continue
		}
		out = append(out, b...)
	}
	return out
}

// Decode converts a complete byte string. Invalid input becomes U+FFFD.
func (c *Codec) Decode(p []byte) string {
	d := c.NewDecoder()
	return d.Decode(p) + d.Flush()
}

// Decoder decodes a stream whose multi-byte sequences may be split between
// calls. Incomplete trailing bytes wait for the next call.
type Decoder struct {
	t       transform.Transformer
	pending []byte
}

func (c *Codec) NewDecoder() *Decoder {
	return &Decoder{t: c.enc.NewDecoder()}
}

func (d *Decoder) Decode(p []byte) string {
	src := append(d.pending, p...)
	d.pending = nil
	return d.run(src, false)
}

// Flush decodes whatever is pending as if the stream had ended.
func (d *Decoder) Flush() string {
	src := d.pending
	d.pending = nil
	if len(src) == 0 {
		return ""
	}
	return d.run(src, true)
}

// Pending reports how many bytes are held back waiting for the rest of a
// multi-byte sequence.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) run(src []byte, atEOF bool) string {
	dst := make([]byte, len(src)*3+utf8.UTFMax)
	var out []byte
	for len(src) > 0 {
		nDst, nSrc, err := d.t.Transform(dst, src, atEOF)
		out = append(out, dst[:nDst]...)
		src = src[nSrc:]

		switch err {
		case nil:
			return string(out)
		case transform.ErrShortDst:
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, len(dst)*2)
			}
		case transform.ErrShortSrc:
			if atEOF {
				out = append(out, "\uFFFD"...)
				src = src[1:]
				continue
			}
			d.pending = append([]byte(nil), src...)
			return string(out)
		default:
			out = append(out, "\uFFFD"...)
			src = src[1:]
		}
	}
	return string(out)
}

var cyrillic = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d", 'е': "e", 'ё': "yo",
	'ж': "zh", 'з': "z", 'и': "i", 'й': "j", 'к': "k", 'л': "l", 'м': "m",
	'н': "n", 'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t", 'у': "u",
	'ф': "f", 'х': "h", 'ц': "c", 'ч': "ch", 'ш': "sh", 'щ': "shch",
	'ъ': "", 'ы': "y", 'ь': "'", 'э': "e", 'ю': "yu", 'я': "ya",
	'А': "A", 'Б': "B", 'В': "V", 'Г': "G", 'Д': "D", 'Е': "E", 'Ё': "Yo",
	'Ж': "Zh", 'З': "Z", 'И': "I", 'Й': "J", 'К': "K", 'Л': "L", 'М': "M",
	'Н': "N", 'О': "O", 'П': "P", 'Р': "R", 'С': "S", 'Т': "T", 'У': "U",
	'Ф': "F", 'Х': "H", 'Ц': "C", 'Ч': "Ch", 'Ш': "Sh", 'Щ': "Shch",
	'Ъ': "", 'Ы': "Y", 'Ь': "'", 'Э': "E", 'Ю': "Yu", 'Я': "Ya",
	'і': "i", 'І': "I", 'ї': "yi", 'Ї': "Yi", 'є': "ye", 'Є': "Ye",
	'ґ': "g", 'Ґ': "G",
}

// Transliterate approximates s in ASCII: Cyrillic is romanised and accents
// are stripped. Anything still outside ASCII is left for the caller.
func Transliterate(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if latin, ok := cyrillic[r]; ok {
			sb.WriteString(latin)
			continue
		}
		sb.WriteRune(r)
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, sb.String())
	if err != nil {
		return sb.String()
	}
	return out
}

// ASCII transliterates s and replaces whatever is left outside 7-bit ASCII
// with '?'.
func ASCII(s string) string {
	s = Transliterate(s)
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return '?'
		}
		return r
	}, s)
}
