package identity

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateAtGeneratesKeypair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-1.key")
	n, err := LoadOrCreateAt("node-1", path, "")
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	if n.NodeID != "node-1" {
		t.Fatalf("unexpected node id: %s", n.NodeID)
	}
	if len(n.PublicKey) == 0 || len(n.PrivateKey) == 0 {
		t.Fatalf("expected non-empty keys")
	}
}

func TestLoadOrCreateAtIsStableAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-1.key")
	first, err := LoadOrCreateAt("node-1", path, "")
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := LoadOrCreateAt("node-1", path, "")
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("expected same keypair across calls, got %s vs %s", first.Fingerprint(), second.Fingerprint())
	}
}

func TestLoadOrCreateAtWithPassphraseRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-2.key")
	first, err := LoadOrCreateAt("node-2", path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := LoadOrCreateAt("node-2", path, "correct horse battery staple")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("expected same keypair after encrypted reload")
	}
}

func TestSignAndVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node-3.key")
	n, err := LoadOrCreateAt("node-3", path, "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg := []byte("FETCH /a.txt#3")
	sig := n.Sign(msg)
	if !Verify(n.PublicKey, msg, sig) {
		t.Fatalf("expected valid signature to verify")
	}
	if Verify(n.PublicKey, []byte("tampered"), sig) {
		t.Fatalf("expected verification to fail for a different message")
	}
}

func TestLoadReturnsErrNoIdentityWithoutEnv(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := Load("never-created", ""); err != ErrNoIdentity {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
}
