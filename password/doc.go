// Package password implements credential hashing and verification with
// Argon2id defaults.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// The hasher supports transparent parameter upgrades: if a stored hash was
// produced with weaker parameters, [Argon2.NeedsRehash] returns true so the
// caller can re-hash on the next successful login.
//
// This package owns hashing and verification only; when and how credentials
// are checked is the engine's business.
package password
