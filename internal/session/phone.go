package session

import "strings"

// NormalizePhone strips transport decorations so every transport maps a user to the
// same key: "2348012345678@c.us", "whatsapp:+2348012345678" and "+234 801 234 5678"
// all become "2348012345678".
func NormalizePhone(phone string) string {
	p := strings.TrimSpace(phone)
	p = strings.TrimPrefix(p, "whatsapp:")
	for _, suffix := range []string{"@c.us", "@s.whatsapp.net"} {
		p = strings.TrimSuffix(p, suffix)
	}
	// Device-specific JIDs look like 2348012345678:12.
	if i := strings.IndexByte(p, ':'); i > 0 {
		p = p[:i]
	}
	p = strings.TrimPrefix(p, "+")
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, p)
}
