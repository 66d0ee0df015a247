// Package geo resolves client addresses to ISO country codes for
// GeoMatch conditions, backed by a MaxMind database file. A nil resolver
// is valid and resolves nothing, so deployments without a database run
// on the country the caller supplies in the request context (or none).
package geo
