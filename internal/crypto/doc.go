// Package crypto holds the keyed cipher used by peerchat sessions.
//
// Contents
//
//   - Token generation and in-memory token sealing (GenerateToken, NewToken)
//   - Password-based key derivation from the shared token (DeriveKey)
//   - Payload ciphers selected by Suite (NewCipher): AES-256-CBC with a random
//     16-byte IV, and XChaCha20-Poly1305 with a random 24-byte nonce
//   - Short fingerprints of derived keys for out-of-band comparison
//
// # Notes
//
// Both peers derive the session key independently from the token, so no key
// material ever crosses the wire. The CBC suite carries no integrity tag: a
// modified ciphertext may decrypt to garbage without an error. Callers that
// need tamper detection should configure the XChaCha20-Poly1305 suite on both
// sides.
//
// Derived keys live in memguard locked buffers and are wiped by Key.Destroy.
package crypto
