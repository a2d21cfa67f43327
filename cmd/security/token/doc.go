// Package token provides credential hashing primitives.
//
// Raw credentials never reach logs: callers log Fingerprint(credential) instead,
// a short, stable SHA-256 prefix that is enough to correlate log lines for one
// session without revealing anything replayable.
package token
