// Package identity manages a node's long-lived Ed25519 keypair: generation,
// keystore persistence, and Sign/Verify helpers. The chunk protocol and
// heartbeats do not call them: neither carries a signature.
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wyvernglobal/junknas/internal/crypto"
)

// ErrNoIdentity is returned by Load when no keystore file exists yet for a
// node and the caller asked not to create one.
var ErrNoIdentity = errors.New("identity: no keystore for node")

// Node is a node's signing identity.
type Node struct {
	NodeID     string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Fingerprint returns the SHA-256 fingerprint of the node's public key.
func (n *Node) Fingerprint() string {
	return crypto.ComputeFingerprint(n.PublicKey)
}

// Sign signs msg with the node's private key.
func (n *Node) Sign(msg []byte) []byte {
	return ed25519.Sign(n.PrivateKey, msg)
}

// Verify reports whether sig is a valid signature over msg for the given
// public key.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// DefaultKeystorePath returns <home>/.junknas/agent/identity/<nodeID>.key.
func DefaultKeystorePath(nodeID string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("identity: resolve home dir: %w", err)
	}
	return filepath.Join(homeDir, ".junknas", "agent", "identity", nodeID+".key"), nil
}

// LoadOrCreate loads the node's keystore, generating and persisting a fresh
// Ed25519 keypair if none exists yet. An empty passphrase stores the key
// unencrypted, suitable only for local development.
func LoadOrCreate(nodeID, passphrase string) (*Node, error) {
	path, err := DefaultKeystorePath(nodeID)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(nodeID, path, passphrase)
}

// LoadOrCreateAt is LoadOrCreate with an explicit keystore path, used by
// tests and by callers that manage their own keystore directory layout.
func LoadOrCreateAt(nodeID, path, passphrase string) (*Node, error) {
	priv, err := loadPrivateKey(path, passphrase)
	if err == nil {
		return fromPrivateKey(nodeID, priv), nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err := crypto.GenerateEd25519()
	if err != nil {
		return nil, fmt.Errorf("identity: generate keypair: %w", err)
	}
	if err := crypto.SaveKey(kp.PrivateKey, path, passphrase); err != nil {
		return nil, fmt.Errorf("identity: save keystore: %w", err)
	}
	return &Node{NodeID: nodeID, PublicKey: kp.PublicKey, PrivateKey: kp.PrivateKey}, nil
}

// Load reads an existing keystore without creating one, returning
// ErrNoIdentity if nodeID has never generated a keypair.
func Load(nodeID, passphrase string) (*Node, error) {
	path, err := DefaultKeystorePath(nodeID)
	if err != nil {
		return nil, err
	}
	priv, err := loadPrivateKey(path, passphrase)
	if os.IsNotExist(err) {
		return nil, ErrNoIdentity
	}
	if err != nil {
		return nil, err
	}
	return fromPrivateKey(nodeID, priv), nil
}

// loadPrivateKey reads the keystore at path, accounting for SaveKey's
// ".insecure" suffix convention when passphrase is empty.
func loadPrivateKey(path, passphrase string) (ed25519.PrivateKey, error) {
	tryPath := path
	if passphrase == "" {
		tryPath = path + ".insecure"
	}
	priv, err := crypto.LoadKey(tryPath, passphrase)
	if err == nil {
		return priv, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return nil, os.ErrNotExist
	}
	return nil, err
}

func fromPrivateKey(nodeID string, priv ed25519.PrivateKey) *Node {
	pub := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pub, priv[32:])
	return &Node{NodeID: nodeID, PublicKey: pub, PrivateKey: priv}
}
