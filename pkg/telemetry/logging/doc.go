// Package logging configures the structured slog logger used across the
// engine: level and format parsing, optional source locations, and a
// consistent default for components that are handed no logger.
package logging
