// Package state holds the client's in-memory conversation Store and the
// small file-backed stores for preferences and scheduled tasks.
package state
