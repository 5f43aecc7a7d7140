package bridgestate

import (
	"net/url"
	"strings"
)

// RedactURL masks the passwords in a Redis address so it can be logged.
// Plain host:port addresses are returned unchanged.
func RedactURL(addr string) string {
	if !strings.Contains(addr, "://") {
		return addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "<invalid redis url>"
	}
	u.RawQuery = redactQuery(u.RawQuery, "sentinel_password")

	user := u.User
	pw, hasPW := "", false
	if user != nil {
		pw, hasPW = user.Password()
	}
	if !hasPW {
		return u.String()
	}
	// url.URL.String escapes '*', so the userinfo is assembled here.
	u.User = nil
	s := u.String()
	prefix := u.Scheme + "://"
	userinfo := url.User(user.Username()).String() + ":" + maskEscaped(pw, userEscape) + "@"
	return prefix + userinfo + strings.TrimPrefix(s, prefix)
}

// redactQuery masks the value of key in a raw query string, leaving every
// other parameter byte for byte.
func redactQuery(raw, key string) string {
	if raw == "" {
		return raw
	}
	parts := strings.Split(raw, "&")
	for i, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k != key {
			continue
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			val = v
		}
		parts[i] = k + "=" + maskEscaped(val, url.QueryEscape)
	}
	return strings.Join(parts, "&")
}

func userEscape(s string) string {
	return strings.TrimPrefix(url.UserPassword("", s).String(), ":")
}

// maskEscaped masks s and escapes the characters it keeps, leaving the mask
// itself readable.
func maskEscaped(s string, escape func(string) string) string {
	return strings.ReplaceAll(escape(mask(s)), "%2A", "*")
}

// mask hides a secret: short ones entirely, longer ones keep their first and
// last character, and long ones keep three leading characters.
func mask(s string) string {
	n := len(s)
	switch {
	case n <= 5:
		return strings.Repeat("*", n)
	case n <= 20:
		return s[:1] + strings.Repeat("*", n-2) + s[n-1:]
	default:
		return s[:3] + strings.Repeat("*", n-4) + s[n-1:]
	}
}
