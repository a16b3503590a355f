// Package auth provides the credential lifecycle for the notice board backend.
//
// It implements a two-kind principal model (user and admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - Signed JWT access/refresh pairs with single-current-token rotation
//   - Refresh token reuse detection via compare-and-swap against the stored token
//   - Registration gated on the pre-provisioned employee roster
//   - Single-use, time-boxed password reset tickets (only the SHA-256 hash
//     of the reset secret is ever stored)
//
// The system holds at most one admin account at a time. AddAdmin only
// succeeds when no admin exists; ReplaceSoleAdmin swaps the admin in a
// single transaction so there is never a window with zero or two admins.
package auth
