package service

import (
	"net/http"
)

// UserAgent is sent upstream in place of the client's user agent.
const UserAgent = "RProxy"

// strippedRequestHeaders never reach the upstream. Everything else, cookies
// and Authorization included, is forwarded as received.
var strippedRequestHeaders = []string{
	"Host",
	"Content-Length",
	"Accept-Encoding",
	"Roblox-Id",
}

// hopByHopHeaders are connection-scoped and are not relayed from upstream responses.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"TE",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// SanitizeRequestHeaders returns the header set to send upstream.
// src is not modified.
func SanitizeRequestHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}
	dst.Set("User-Agent", UserAgent)
	for _, h := range strippedRequestHeaders {
		dst.Del(h)
	}
	return dst
}

func filterResponseHeaders(src http.Header) http.Header {
	dst := src.Clone()
	if dst == nil {
		return make(http.Header)
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
	return dst
}
