package render

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const ellipsis = "…"

// textBlock is the wrapped question and choice lines at one font size.
type textBlock struct {
	size       int
	face       font.Face
	lineHeight int
	question   []string
	choices    []string
}

// height is the pixel height of the block, with half a line between the
// question and the choices.
func (b textBlock) height() int {
	h := len(b.question) * b.lineHeight
	if len(b.choices) > 0 {
		h += b.lineHeight/2 + len(b.choices)*b.lineHeight
	}
	return h
}

func newFace(f *opentype.Font, size int) (font.Face, error) {
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
}

func layoutText(f *opentype.Font, size int, question string, choices []string, maxW int) (textBlock, error) {
	face, err := newFace(f, size)
	if err != nil {
		return textBlock{}, err
	}
	b := textBlock{
		size:       size,
		face:       face,
		lineHeight: face.Metrics().Height.Ceil(),
		question:   wrap(face, question, maxW),
	}
	for _, c := range choices {
		b.choices = append(b.choices, wrap(face, c, maxW)...)
	}
	return b, nil
}

// fitText finds the largest size in [minSize, maxSize] whose wrapped text fits
// in w x h. When nothing fits, the block at minSize is truncated with an
// ellipsis and fits is false.
func fitText(f *opentype.Font, question string, choices []string, w, h, minSize, maxSize int) (b textBlock, fits bool, err error) {
	if maxSize < minSize {
		maxSize = minSize
	}
	lo, hi := minSize, maxSize
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		cand, err := layoutText(f, mid, question, choices, w)
		if err != nil {
			return textBlock{}, false, err
		}
		ok := cand.height() <= h
		cand.face.Close()
		if ok {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best >= 0 {
		b, err = layoutText(f, best, question, choices, w)
		return b, true, err
	}

	b, err = layoutText(f, minSize, question, choices, w)
	if err != nil {
		return textBlock{}, false, err
	}
	truncate(&b, w, h)
	return b, false, nil
}

// truncate drops lines that do not fit in h, keeping the choices visible when
// possible, and marks the cut with an ellipsis.
func truncate(b *textBlock, w, h int) {
	if b.lineHeight <= 0 {
		return
	}
	rows := h / b.lineHeight
	if len(b.choices) > 0 {
		rows = (h - b.lineHeight/2) / b.lineHeight
	}
	if rows < 1 {
		b.question, b.choices = nil, nil
		return
	}

	if len(b.choices) >= rows {
		b.question = nil
		b.choices = b.choices[:rows]
		b.choices[rows-1] = ellipsize(b.face, b.choices[rows-1], w)
		return
	}
	keep := rows - len(b.choices)
	if keep < len(b.question) {
		b.question = b.question[:keep]
		b.question[keep-1] = ellipsize(b.face, b.question[keep-1], w)
	}
}

func ellipsize(face font.Face, s string, maxW int) string {
	limit := fixed.I(maxW)
	for s != "" && font.MeasureString(face, s+ellipsis) > limit {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
	}
	return strings.TrimRight(s, " ") + ellipsis
}

// wrap breaks s into lines no wider than maxW. Explicit newlines are kept and
// words wider than a line are split between runes.
func wrap(face font.Face, s string, maxW int) []string {
	limit := fixed.I(maxW)
	var lines []string
	for _, para := range strings.Split(s, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := ""
		for _, w := range words {
			cand := w
			if line != "" {
				cand = line + " " + w
			}
			if font.MeasureString(face, cand) <= limit {
				line = cand
				continue
			}
			if line != "" {
				lines = append(lines, line)
				line = ""
			}
			for font.MeasureString(face, w) > limit {
				head := splitToWidth(face, w, limit)
				lines = append(lines, head)
				w = w[len(head):]
			}
			line = w
		}
		lines = append(lines, line)
	}
	return lines
}

// splitToWidth returns the longest prefix of w that fits, at least one rune.
func splitToWidth(face font.Face, w string, limit fixed.Int26_6) string {
	end := 0
	for end < len(w) {
		_, size := utf8.DecodeRuneInString(w[end:])
		if end > 0 && font.MeasureString(face, w[:end+size]) > limit {
			break
		}
		end += size
	}
	return w[:end]
}
