package textx

import (
	"html"
	"net/url"
	"strings"
)

// EmoticonImgTag renders an inline image element for a resolved emoticon.
// When proxyPath is non-empty, remote URLs are routed through it so the
// server can attach the Referer the image host requires.
func EmoticonImgTag(src, alt, proxyPath string) string {
	if proxyPath != "" && !strings.HasPrefix(src, "data:") {
		src = ProxiedURL(proxyPath, src)
	}
	return `<img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(alt) + `" class="emoticon" />`
}

// ProxiedURL returns proxyPath with target as its url query parameter.
func ProxiedURL(proxyPath, target string) string {
	return proxyPath + "?url=" + url.QueryEscape(target)
}
