// Package credential encodes and verifies the signed session credentials handed to clients.
//
// Credentials are compact HS256 JWTs carrying the account id (sub), the role, the
// issue and expiry instants and a unique id (jti). A credential that verifies here is
// only structurally valid; whether it is still the account's active session is decided
// by the session package.
package credential
