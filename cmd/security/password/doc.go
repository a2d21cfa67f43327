// Package password hashes and verifies account passwords.
//
// New hashes are Argon2id in the PHC string format
// ($argon2id$v=19$m=<KiB>,t=<iter>,p=<par>$<salt>$<key>). Verify also accepts
// bcrypt hashes ($2a$, $2b$, $2y$) so accounts imported from an older user table
// keep working without a reset.
//
// Encoded hashes are treated as untrusted input: Verify refuses parameters far
// above the configured cost.
package password
