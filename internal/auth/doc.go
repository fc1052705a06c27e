// Package auth provides credential verification and access token handling
// for the optional API authentication layer.
//
// Outpost runs with a single configured admin account: the username and an
// Argon2id hash of the password live in configuration. A successful login
// issues a short-lived HS256 JWT; every protected request is then validated
// by signature alone, with no per-request storage lookup.
//
// # Key Functions
//
//   - HashPassword / VerifyPassword: Argon2id in PHC string format
//   - GenerateAccessToken / ParseToken: HS256 access tokens
//
// Password verification uses constant-time comparison.
package auth
