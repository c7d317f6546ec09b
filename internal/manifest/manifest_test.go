package manifest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"example.com/alsepgate/internal/crypto"
)

func TestItemType(t *testing.T) {
	tests := map[string]string{
		"out/pse.a12.1.2_lp.csv":   "csv",
		"out/pse.a12.1.2_meta.csv": "meta-csv",
		"tbl_pse.copy":             "pgcopy",
		"XA.S12..MHZ.mseed":        "mseed",
		"diagnostics.ndjson":       "diagnostics",
		"acceptance.pdf":           "pdf",
		"manifest.json.jws":        "signature",
		"wtn.10.3":                 "tape",
		"wth.1.1.zst":              "tape",
		"notes.txt":                "other",
	}
	for in, want := range tests {
		if got := ItemType(in); got != want {
			t.Fatalf("ItemType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestBuildSaveVerify(t *testing.T) {
	dir := t.TempDir()
	tape := filepath.Join(dir, "pse.a12.1.2")
	out := filepath.Join(dir, "pse.a12.1.2_lp.csv")
	if err := os.WriteFile(tape, []byte("tape bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(out, []byte("a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}
	m, err := Build(tape, []string{out})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.Tape == nil || m.Tape.Type != "tape" || m.Tape.Size != 10 {
		t.Fatalf("tape item = %+v", m.Tape)
	}
	if len(m.Items) != 1 || m.Items[0].Type != "csv" {
		t.Fatalf("items = %+v", m.Items)
	}
	path := filepath.Join(dir, "manifest.json")
	if err := Save(m, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if bad, err := Verify(loaded); err != nil || len(bad) != 0 {
		t.Fatalf("Verify = %v, %v; want clean", bad, err)
	}
	if err := os.WriteFile(out, []byte("changed\n"), 0644); err != nil {
		t.Fatal(err)
	}
	bad, err := Verify(loaded)
	if err != nil || len(bad) != 1 || bad[0] != out {
		t.Fatalf("Verify after change = %v, %v; want [%s]", bad, err, out)
	}
}

func TestSignAndVerifySignature(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey)})

	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := Save(Manifest{ShaAlgo: "sha256"}, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sigPath, err := Sign(path, keyPEM)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if sigPath != SignaturePath(path) {
		t.Fatalf("signature path = %s", sigPath)
	}
	if err := VerifySignature(path, pubPEM); err != nil {
		t.Fatalf("VerifySignature: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"shaAlgo":"md5"}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := VerifySignature(path, pubPEM); !errors.Is(err, crypto.ErrBadSignature) {
		t.Fatalf("VerifySignature after edit = %v, want ErrBadSignature", err)
	}
}
