package ingest

// text.go cleans comma-separated uploads before encoding/csv sees them.
//
// Spreadsheet programs on Windows prepend a UTF-8 BOM and legacy exports
// may contain bytes that are not UTF-8. Both are handled while streaming:
//
//   - bomSkipper drops a leading 0xEF 0xBB 0xBF
//   - utf8Sanitizer replaces each invalid byte with '?'
//
// Use cleanText to apply both in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkipper discards a UTF-8 byte order mark at the start of the stream.
type bomSkipper struct {
	r       *bufio.Reader
	checked bool
}

func newBOMSkipper(r io.Reader) *bomSkipper {
	return &bomSkipper{r: bufio.NewReader(r)}
}

func (b *bomSkipper) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err != nil && err != io.EOF {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// utf8Sanitizer rewrites invalid UTF-8 in place. A multi-byte sequence split
// across two reads is carried over instead of being treated as invalid.
type utf8Sanitizer struct {
	r       io.Reader
	pending []byte
}

func newUTF8Sanitizer(r io.Reader) *utf8Sanitizer {
	return &utf8Sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *utf8Sanitizer) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	offset := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[offset:])
	n += offset
	if n == 0 {
		return 0, err
	}
	return s.sanitize(p[:n], err == io.EOF), err
}

func (s *utf8Sanitizer) sanitize(data []byte, atEOF bool) int {
	if isASCII(data) {
		return len(data)
	}

	write := 0
	for read := 0; read < len(data); {
		if !atEOF && incomplete(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// incomplete reports whether data is the valid prefix of a multi-byte rune
// that has not been fully read yet.
func incomplete(data []byte) bool {
	if len(data) >= utf8.UTFMax || utf8.FullRune(data) {
		return false
	}
	want := leadLen(data[0])
	if want <= len(data) {
		return false
	}
	for _, b := range data[1:] {
		if b&0xC0 != 0x80 {
			return false
		}
	}
	return true
}

// leadLen returns the sequence length announced by a leading byte, or 0.
func leadLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// cleanText strips a BOM and sanitizes UTF-8.
func cleanText(r io.Reader) io.Reader {
	return newUTF8Sanitizer(newBOMSkipper(r))
}
