package render

import (
	"fmt"
	"strings"

	"github.com/keagan/videomcp/internal/errs"
)

// Style selects how the answer corner is lit.
type Style string

const (
	// StyleDarken fades the answer box from neutral to dark and its letter
	// from dark to white.
	StyleDarken Style = "darken"

	// StyleRedBorder grows a red ring around the answer box.
	StyleRedBorder Style = "red_border"
)

// Styles lists the accepted style names.
func Styles() []string {
	return []string{string(StyleDarken), string(StyleRedBorder)}
}

// ParseStyle resolves a style name. Unknown names are configuration errors.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.TrimSpace(strings.ToLower(s))) {
	case StyleDarken:
		return StyleDarken, nil
	case StyleRedBorder:
		return StyleRedBorder, nil
	}
	return "", errs.Configuration("lit style",
		fmt.Errorf("unknown style %q (want one of %v)", s, Styles()))
}

// Progress is the highlight intensity of frame i in an n-frame clip:
// i/(n-1), or 0 for a single-frame clip.
func Progress(i, n int) (float64, error) {
	if n < 1 || i < 0 || i >= n {
		return 0, errs.Render("progress", fmt.Errorf("frame %d out of range [0, %d)", i, n))
	}
	if n == 1 {
		return 0, nil
	}
	return float64(i) / float64(n-1), nil
}
