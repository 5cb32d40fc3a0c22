package importer

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// FallbackCharset names the result of a decode that no charset handled
// cleanly.
const FallbackCharset = "UTF-8 (fallback)"

type charset struct {
	name string
	enc  encoding.Encoding
}

// legacyCharsets are tried in order once the bytes are known not to be UTF-8.
var legacyCharsets = []charset{
	{"Windows-1252", charmap.Windows1252},
	{"ISO-8859-1", charmap.ISO8859_1},
	{"ISO-8859-2", charmap.ISO8859_2},
	{"Windows-1250", charmap.Windows1250},
	{"UTF-16LE", unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)},
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw file bytes to text and names the charset used. A byte
// order mark wins; otherwise valid UTF-8 is taken as is, then each legacy
// charset is tried and the first decoding free of replacement characters is
// kept. When every attempt fails the bytes are read as UTF-8 with invalid
// sequences replaced.
func Decode(data []byte) (string, string) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), "UTF-8"
	case bytes.HasPrefix(data, bomUTF16LE):
		if text, ok := decodeWith(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data); ok {
			return text, "UTF-16LE"
		}
	case bytes.HasPrefix(data, bomUTF16BE):
		if text, ok := decodeWith(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data); ok {
			return text, "UTF-16BE"
		}
	}
	if utf8.Valid(data) {
		return string(data), "UTF-8"
	}
	for _, cs := range legacyCharsets {
		if text, ok := decodeWith(cs.enc, data); ok {
			return text, cs.name
		}
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError)), FallbackCharset
}

func decodeWith(enc encoding.Encoding, data []byte) (string, bool) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}
