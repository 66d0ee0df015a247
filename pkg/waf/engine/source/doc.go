// Package source provides policy sources for the engine: a file source
// that loads a policy document from disk and watches it with fsnotify
// for hot reload, and a memory source for tests and embedders.
package source
