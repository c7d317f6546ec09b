package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"testing"
	"time"
)

func testKey(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	return key, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func TestSignVerifyWithCertificate(t *testing.T) {
	key, keyPEM := testKey(t)
	now := time.Now().UTC()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "manifest signer"},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	payload := []byte(`{"items":[]}`)
	j, err := SignDetachedJWS(payload, keyPEM)
	if err != nil {
		t.Fatalf("SignDetachedJWS: %v", err)
	}
	if j.Payload != "" {
		t.Fatalf("detached JWS carries payload %q", j.Payload)
	}
	raw, _ := json.Marshal(j)
	parsed, err := ParseDetachedJWS(raw)
	if err != nil {
		t.Fatalf("ParseDetachedJWS: %v", err)
	}
	if err := VerifyDetachedJWS(payload, parsed, certPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
	if err := VerifyDetachedJWS([]byte(`{"items":[1]}`), parsed, certPEM); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("tampered payload: err = %v, want ErrBadSignature", err)
	}
}

func TestVerifyWithPublicKey(t *testing.T) {
	key, keyPEM := testKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	j, err := SignDetachedJWS([]byte("abc"), keyPEM)
	if err != nil {
		t.Fatalf("SignDetachedJWS: %v", err)
	}
	if err := VerifyDetachedJWS([]byte("abc"), j, pubPEM); err != nil {
		t.Fatalf("VerifyDetachedJWS: %v", err)
	}
}

func TestParseDetachedJWSRejectsEmpty(t *testing.T) {
	if _, err := ParseDetachedJWS([]byte(`{}`)); err == nil {
		t.Fatal("expected error for empty JWS")
	}
	if _, err := SignDetachedJWS([]byte("x"), []byte("not pem")); err == nil {
		t.Fatal("expected error for bad key")
	}
}
