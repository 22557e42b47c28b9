package document

import (
	"fmt"
	"strings"
	"unicode/utf16"
)

// StyleRange links a span of a block. Offset and Length count UTF-16 code
// units from the start of the block, the unit Docs indexes in.
type StyleRange struct {
	Offset int
	Length int
	Link   string
}

// Block is one chunk of text appended to a document in a single insert.
type Block struct {
	Text   string
	Styles []StyleRange
}

// Len returns the length of s in document index units.
func Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Dropped reports whether Docs discards r when it is inserted: the C0 controls
// other than tab, newline and vertical tab, and the BMP private use area.
func Dropped(r rune) bool {
	return r <= 0x08 || (r >= 0x0C && r <= 0x1F) || (r >= 0xE000 && r <= 0xF8FF)
}

// Sanitize removes the runes Docs would drop, so s is stored exactly as sent.
func Sanitize(s string) string {
	if !strings.ContainsFunc(s, Dropped) {
		return s
	}
	return strings.Map(func(r rune) rune {
		if Dropped(r) {
			return -1
		}
		return r
	}, s)
}

// clean strips dropped runes from the text and moves the style ranges with it.
// Ranges left empty are removed.
func (b Block) clean() Block {
	if !strings.ContainsFunc(b.Text, Dropped) {
		return b
	}
	// pos maps an offset in the original text to one in the cleaned text.
	pos := make([]int, 0, Len(b.Text)+1)
	var sb strings.Builder
	n := 0
	for _, r := range b.Text {
		w := utf16.RuneLen(r)
		for i := 0; i < w; i++ {
			pos = append(pos, n)
		}
		if Dropped(r) {
			continue
		}
		sb.WriteRune(r)
		n += w
	}
	pos = append(pos, n)

	out := Block{Text: sb.String()}
	for _, s := range b.Styles {
		start, end := pos[s.Offset], pos[s.Offset+s.Length]
		if end > start {
			out.Styles = append(out.Styles, StyleRange{Offset: start, Length: end - start, Link: s.Link})
		}
	}
	return out
}

func (b Block) validate() error {
	n := Len(b.Text)
	for _, s := range b.Styles {
		if s.Offset < 0 || s.Length <= 0 || s.Offset+s.Length > n {
			return fmt.Errorf("style range %d+%d outside block of length %d", s.Offset, s.Length, n)
		}
	}
	return nil
}

// Builder accumulates block text and keeps style offsets in document units.
type Builder struct {
	sb     strings.Builder
	n      int
	styles []StyleRange
}

// Write appends s without the runes Docs would drop.
func (b *Builder) Write(s string) {
	s = Sanitize(s)
	b.sb.WriteString(s)
	b.n += Len(s)
}

func (b *Builder) Line(s string) {
	b.Write(s)
	b.Write("\n")
}

// WriteLink writes text and links it to url.
func (b *Builder) WriteLink(text, url string) {
	text = Sanitize(text)
	if text == "" {
		return
	}
	b.styles = append(b.styles, StyleRange{Offset: b.n, Length: Len(text), Link: url})
	b.Write(text)
}

func (b *Builder) Block() Block {
	return Block{Text: b.sb.String(), Styles: append([]StyleRange(nil), b.styles...)}
}
