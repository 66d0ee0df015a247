package engine

import (
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strings"

	"sentra-hq/bastion/pkg/waf"
)

// RequestContext is the normalized view of one inspected request. String
// attributes are URL-decoded exactly once at normalization time; decoding
// depth is fixed at one pass, so doubly encoded payloads reach the rules
// still encoded once and flagging them is the rules' job.
type RequestContext struct {
	// Method is the HTTP method.
	Method string

	// URI is the decoded request line (path plus query).
	URI string

	// Path is the decoded URL path.
	Path string

	// QueryArgs maps argument name to its ordered values.
	QueryArgs url.Values

	// Headers maps canonical header name to its ordered values.
	Headers http.Header

	// Cookies maps cookie name to its ordered values.
	Cookies map[string][]string

	// PostArgs maps form argument name to its ordered values, populated
	// for form-encoded bodies.
	PostArgs url.Values

	// ClientIP is the client address, without port.
	ClientIP string

	// Country is the resolved ISO country code, if known.
	Country string

	// Body is the inspected request body, bounded by the policy's body
	// size limit. Nil when inspection is disabled or the body was
	// oversized with an Allow-uninspected setting.
	Body []byte

	// BodyOversized reports that the body exceeded the inspection limit.
	BodyOversized bool
}

// FromHTTP normalizes an inbound request against the engine's active
// policy settings, reading at most the configured body inspection limit
// and resolving the client country when a geo resolver is configured.
func (e *Engine) FromHTTP(r *http.Request) (*RequestContext, error) {
	settings := waf.Settings{}
	if snap := e.snap.Load(); snap != nil {
		settings = snap.policy.Settings
	}

	req := &RequestContext{
		Method:    r.Method,
		QueryArgs: r.URL.Query(),
		Headers:   r.Header,
		Cookies:   make(map[string][]string),
		PostArgs:  url.Values{},
	}

	req.URI = decodeOnce(r.URL.RequestURI())
	req.Path = r.URL.Path // already decoded once by the URL parser

	for _, c := range r.Cookies() {
		req.Cookies[c.Name] = append(req.Cookies[c.Name], c.Value)
	}

	req.ClientIP = clientIP(r)
	if req.Country == "" {
		req.Country = e.resolver.Country(req.ClientIP)
	}

	if r.Body != nil && settings.RequestBodyCheck != nil && *settings.RequestBodyCheck {
		limit := int64(settings.MaxRequestBodySizeKB) * 1024
		body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > limit {
			req.BodyOversized = true
		} else {
			req.Body = body
			if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/x-www-form-urlencoded" {
				if args, err := url.ParseQuery(string(body)); err == nil {
					req.PostArgs = args
				}
			}
		}
	}

	return req, nil
}

// decodeOnce URL-decodes a request URI a single time. The path and query
// are decoded separately: "+" stays literal in the path and reads as a
// space only in the query. Parts that do not decode pass through
// unchanged.
func decodeOnce(s string) string {
	path, query, hasQuery := strings.Cut(s, "?")
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	if !hasQuery {
		return path
	}
	if decoded, err := url.QueryUnescape(query); err == nil {
		query = decoded
	}
	return path + "?" + query
}

// clientIP extracts the client address: the first X-Forwarded-For hop
// when present, otherwise the connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
