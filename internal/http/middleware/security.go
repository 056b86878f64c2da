// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders, hardening for the dashboard's JSON API
// behind a reverse proxy. The surface is browser-facing (the dashboard SPA
// calls it cross-origin), so the baseline forbids sniffing, framing, and
// referrer leakage; HSTS and cache suppression are opt-in because they depend
// on the deployment.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// defaultHSTSMaxAge is used when HSTSMaxAge is unset. 180 days is long
// enough for preload lists without locking a misconfigured host out for a
// year.
const defaultHSTSMaxAge = 180 * 24 * time.Hour

// SecurityOptions configures the headers emitted by SecurityHeaders.
//
// EnableHSTS emits Strict-Transport-Security, but only on requests that
// actually arrived over HTTPS (directly or via X-Forwarded-Proto). Enable it
// only when the proxy-to-app hop is also encrypted.
//
// NoStore adds Cache-Control: no-store plus the legacy Pragma/Expires pair.
// Classification results and report snapshots are per-user data; turn this on
// when a shared cache sits in front of the API.
//
// EnablePolicy adds the browser feature policies. They only matter to user
// agents and are inert for curl-style clients.
type SecurityOptions struct {
	EnableHSTS   bool
	HSTSMaxAge   time.Duration
	NoStore      bool
	EnablePolicy bool
}

// baseline headers sent on every response regardless of options.
var baselineHeaders = [...][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	{"Referrer-Policy", "no-referrer"},
}

// policyHeaders are sent when EnablePolicy is set. The API serves no HTML, so
// every browser capability is denied outright.
var policyHeaders = [...][2]string{
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()"},
	{"X-Permitted-Cross-Domain-Policies", "none"},
}

// noStoreHeaders suppress caching of sensitive responses.
var noStoreHeaders = [...][2]string{
	{"Cache-Control", "no-store"},
	{"Pragma", "no-cache"},
	{"Expires", "0"},
}

// SecurityHeaders returns a Gin middleware that attaches the configured
// security headers to each response. When a correlation ID is already on the
// response, it is appended to Access-Control-Expose-Headers so the dashboard
// can surface it next to error toasts.
//
// No CSP is set here: the API never serves HTML, and a CSP on JSON responses
// only confuses intermediate proxies.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := opt.HSTSMaxAge
	if maxAge <= 0 {
		maxAge = defaultHSTSMaxAge
	}
	hstsValue := "max-age=" + strconv.Itoa(int(maxAge.Seconds())) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		for _, kv := range baselineHeaders {
			h.Set(kv[0], kv[1])
		}
		if opt.EnablePolicy {
			for _, kv := range policyHeaders {
				h.Set(kv[0], kv[1])
			}
		}
		if opt.NoStore {
			for _, kv := range noStoreHeaders {
				h.Set(kv[0], kv[1])
			}
		}
		// Never advertise HSTS on a plain-HTTP request.
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		if rid := h.Get(requestIDHeader); rid != "" {
			exposeHeader(h, requestIDHeader)
		}

		c.Next()
	}
}

// exposeHeader appends name to Access-Control-Expose-Headers without
// clobbering values other middleware already put there.
func exposeHeader(h http.Header, name string) {
	const key = "Access-Control-Expose-Headers"
	cur := h.Get(key)
	switch {
	case cur == "":
		h.Set(key, name)
	case !strings.Contains(cur, name):
		h.Set(key, cur+", "+name)
	}
}

// isHTTPS reports whether the request used HTTPS, either terminated here
// (r.TLS != nil) or at a proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
