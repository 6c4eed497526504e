package browser

import (
	"net/url"
	"strings"
)

// DisplayName derives the stored filename of a rendered page:
// the host with dots replaced by underscores, then the last path segment
// (or "webpage"), with a .pdf extension.
//
//	https://www.example.com/blog/post-1  ->  www_example_com_post-1.pdf
func DisplayName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "webpage.pdf"
	}
	base := strings.ReplaceAll(u.Host, ".", "_")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	last := segments[len(segments)-1]
	if last == "" {
		last = "webpage"
	}
	if !strings.HasSuffix(strings.ToLower(last), ".pdf") {
		last += ".pdf"
	}
	if base == "" {
		return last
	}
	return base + "_" + last
}
