// Package vault encrypts push tokens at rest.
//
// A 32-byte key is generated once per install and kept in the same private store as the ciphertext.
// Creation goes through [KeyStore.EnsureKey], which must be idempotent under races so every caller converges on one key.
//
// [Vault.Recover] is the read path used by the token manager. It favors availability over confidentiality:
// a value that fails to decrypt is accepted as a legacy plaintext token when it has a token's shape, and is otherwise treated as absent.
package vault
