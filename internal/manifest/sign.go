package manifest

import (
	"encoding/json"
	"fmt"
	"os"

	"example.com/alsepgate/internal/crypto"
)

// SignaturePath is where Sign writes the detached signature of a manifest.
func SignaturePath(manifestPath string) string {
	return manifestPath + ".jws"
}

// Sign signs the saved manifest bytes with an RSA private key and writes the
// detached JWS next to it.
func Sign(manifestPath string, privateKeyPEM []byte) (string, error) {
	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		return "", err
	}
	jws, err := crypto.SignDetachedJWS(payload, privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("sign manifest: %w", err)
	}
	b, err := json.MarshalIndent(jws, "", "  ")
	if err != nil {
		return "", err
	}
	out := SignaturePath(manifestPath)
	return out, os.WriteFile(out, b, 0644)
}

// VerifySignature checks the detached signature of manifestPath against a
// certificate or public key.
func VerifySignature(manifestPath string, publicPEM []byte) error {
	payload, err := os.ReadFile(manifestPath)
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(SignaturePath(manifestPath))
	if err != nil {
		return err
	}
	jws, err := crypto.ParseDetachedJWS(raw)
	if err != nil {
		return err
	}
	return crypto.VerifyDetachedJWS(payload, jws, publicPEM)
}
