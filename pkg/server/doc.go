// Package server provides the admin HTTP server: Prometheus metrics,
// health, and policy introspection/reload endpoints. The engine itself
// is a library boundary, not a network protocol; this server only
// exposes operational surfaces.
package server
