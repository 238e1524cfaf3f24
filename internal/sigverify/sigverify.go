// Package sigverify checks client signatures against stored PEM public keys.
package sigverify

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
)

// Verify reports whether signatureB64 is a valid signature over the UTF-8
// bytes of message by the PEM-encoded (PKIX) public key. RSA keys are
// checked with PKCS#1 v1.5 over SHA-256; Ed25519 keys sign the raw message.
//
// Every failure mode, including a malformed key or signature, collapses to
// false. No error detail crosses this boundary.
func Verify(publicKeyPEM, message, signatureB64 string) bool {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return false
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return false
	}

	switch key := pub.(type) {
	case *rsa.PublicKey:
		digest := sha256.Sum256([]byte(message))
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig) == nil
	case ed25519.PublicKey:
		return ed25519.Verify(key, []byte(message), sig)
	default:
		return false
	}
}
