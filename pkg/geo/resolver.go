package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/maxminddb-golang"
)

// Resolver resolves a client address to an ISO 3166-1 alpha-2 country
// code.
type Resolver struct {
	reader *maxminddb.Reader
}

// countryRecord is the subset of the MaxMind country schema we read.
type countryRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
}

// Open loads a MaxMind country database from path.
func Open(path string) (*Resolver, error) {
	if path == "" {
		return nil, fmt.Errorf("geo database path is empty")
	}
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geo database %q: %w", path, err)
	}
	return &Resolver{reader: reader}, nil
}

// Country returns the country code for addr, or "" when the address is
// unparsable, unknown to the database, or the resolver is nil.
func (r *Resolver) Country(addr string) string {
	if r == nil || r.reader == nil {
		return ""
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return ""
	}

	var record countryRecord
	if err := r.reader.Lookup(ip, &record); err != nil {
		return ""
	}
	return record.Country.ISOCode
}

// Close releases the database.
func (r *Resolver) Close() error {
	if r == nil || r.reader == nil {
		return nil
	}
	return r.reader.Close()
}
