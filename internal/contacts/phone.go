package contacts

import (
	"encoding/base64"
	"fmt"
	"html"
	"regexp"
	"strings"
)

const defaultCountryCode = "1"

// Canonicalize strips everything but digits and guarantees a leading "+".
// Inputs without a "+" are assumed to be in the default country.
// An input with no digits canonicalizes to "".
func Canonicalize(phone string) string {
	phone = strings.TrimSpace(phone)
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return ""
	}
	if strings.HasPrefix(phone, "+") {
		return "+" + digits
	}
	return "+" + defaultCountryCode + digits
}

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validEmail(s string) bool { return emailRe.MatchString(s) }

var avatarColors = []string{"#007bff", "#28a745", "#dc3545", "#ffc107", "#17a2b8", "#6f42c1"}

// defaultAvatar renders an initials badge as an inline SVG data URI.
func defaultAvatar(name string) string {
	var initials []rune
	for _, part := range strings.Fields(name) {
		initials = append(initials, []rune(strings.ToUpper(part))[0])
		if len(initials) == 2 {
			break
		}
	}
	color := avatarColors[len(name)%len(avatarColors)]
	svg := fmt.Sprintf(`<svg width="40" height="40" viewBox="0 0 40 40" xmlns="http://www.w3.org/2000/svg">`+
		`<circle cx="20" cy="20" r="20" fill="%s"/>`+
		`<text x="20" y="26" text-anchor="middle" fill="white" font-family="Arial" font-size="14" font-weight="bold">%s</text>`+
		`</svg>`, color, html.EscapeString(string(initials)))
	return "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(svg))
}
