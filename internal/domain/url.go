package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// VideoIDParam is the canonical identifier query parameter kept by NormalizeURL
const VideoIDParam = "v"

// shortLinkHosts carry the video identifier in the path, so their query is noise
var shortLinkHosts = map[string]bool{
	"youtu.be":     true,
	"www.youtu.be": true,
}

// NormalizeURL strips query parameters unrelated to the primary video
// identifier (playlist and position markers) so the resolver does not treat
// the request as a playlist.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", NewFetchError(KindInvalidRequest, "source URL is required", nil)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", NewFetchError(KindInvalidRequest, fmt.Sprintf("invalid URL %q", raw), err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", NewFetchError(KindInvalidRequest, fmt.Sprintf("unsupported URL scheme %q", u.Scheme), nil)
	}
	if u.Host == "" {
		return "", NewFetchError(KindInvalidRequest, fmt.Sprintf("URL has no host: %q", raw), nil)
	}

	query := u.Query()
	if id := query.Get(VideoIDParam); id != "" {
		u.RawQuery = url.Values{VideoIDParam: []string{id}}.Encode()
		u.Fragment = ""
		return u.String(), nil
	}

	if shortLinkHosts[strings.ToLower(u.Host)] {
		u.RawQuery = ""
		u.Fragment = ""
		return u.String(), nil
	}

	return u.String(), nil
}
