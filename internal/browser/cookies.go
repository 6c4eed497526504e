package browser

import "strings"

// LinkedInCookieDomain is the domain session cookies are set on for LinkedIn pages.
const LinkedInCookieDomain = ".linkedin.com"

// Cookie is one name/value pair to set before navigation.
type Cookie struct {
	Name   string
	Value  string
	Domain string
	Path   string
}

// ParseCookies parses a "n1=v1; n2=v2" header-style string. Pairs without '='
// are skipped; values may themselves contain '='.
func ParseCookies(raw, domain string) []Cookie {
	var cookies []Cookie
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cookies = append(cookies, Cookie{
			Name:   name,
			Value:  strings.TrimSpace(value),
			Domain: domain,
			Path:   "/",
		})
	}
	return cookies
}
