// Command keygen manages a junkNAS node's Ed25519 identity keypair: the
// same keystore format internal/identity reads on agent/controller
// startup, so operators can pre-provision or inspect a node's identity
// without running the full agent.
package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/wyvernglobal/junknas/internal/crypto"
	"github.com/wyvernglobal/junknas/internal/identity"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "generate":
		generateCmd(args)
	case "show":
		showCmd(args)
	case "export":
		exportCmd(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("keygen - junkNAS node identity tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  keygen generate [flags]  - Generate a node's identity keypair")
	fmt.Println("  keygen show [flags]      - Display public key information")
	fmt.Println("  keygen export [flags]    - Export the public key for distribution")
	fmt.Println()
	fmt.Println("Run 'keygen <command> -h' for command-specific help")
}

func keystorePaths(nodeID, keystoreDir string) (privPath, pubPath string) {
	if keystoreDir != "" {
		privPath = filepath.Join(keystoreDir, nodeID+".key")
	} else {
		var err error
		privPath, err = identity.DefaultKeystorePath(nodeID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving keystore path: %v\n", err)
			os.Exit(1)
		}
	}
	pubPath = strings.TrimSuffix(privPath, ".key") + ".pub"
	return privPath, pubPath
}

func defaultNodeID() string {
	host, err := os.Hostname()
	if err != nil {
		return "node"
	}
	return host
}

func generateCmd(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	nodeID := fs.String("node-id", defaultNodeID(), "Node ID the keypair identifies")
	keystoreDir := fs.String("keystore-dir", "", "Keystore directory (default: ~/.junknas/agent/identity)")
	noPassphrase := fs.Bool("no-passphrase", false, "Generate without passphrase protection")
	force := fs.Bool("force", false, "Overwrite an existing keystore for this node")
	fs.Parse(args)

	privPath, pubPath := keystorePaths(*nodeID, *keystoreDir)

	if !*force {
		if _, err := os.Stat(privPath); err == nil || fileExists(privPath+".insecure") {
			fmt.Printf("Identity keys already exist for node %q.\n", *nodeID)
			fmt.Print("Overwrite existing keys? [y/N]: ")
			var response string
			fmt.Scanln(&response)
			if response != "y" && response != "Y" {
				fmt.Println("Aborted.")
				return
			}
			os.Remove(privPath)
			os.Remove(privPath + ".insecure")
		}
	}

	fmt.Println("Generating new identity keypair...")
	fmt.Println()

	kp, err := crypto.GenerateEd25519()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate keypair: %v\n", err)
		os.Exit(1)
	}

	passphrase := readPassphrase(*noPassphrase)

	if err := os.MkdirAll(filepath.Dir(privPath), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create keystore directory: %v\n", err)
		os.Exit(1)
	}
	if err := crypto.SaveKey(kp.PrivateKey, privPath, passphrase); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save private key: %v\n", err)
		os.Exit(1)
	}

	pubKeyB64 := base64.StdEncoding.EncodeToString(kp.PublicKey)
	if err := os.WriteFile(pubPath, []byte(pubKeyB64+"\n"), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save public key: %v\n", err)
		os.Exit(1)
	}

	fingerprint := crypto.ComputeFingerprint(kp.PublicKey)

	fmt.Println("Identity keypair generated successfully!")
	fmt.Println()
	fmt.Printf("Node ID: %s\n", *nodeID)
	fmt.Println("Public Key:")
	fmt.Printf("  %s\n", pubKeyB64)
	fmt.Println()
	fmt.Println("Fingerprint:")
	fmt.Printf("  %s\n", fingerprint)
	fmt.Println()
	fmt.Println("Keys stored in:")
	fmt.Printf("  %s\n", filepath.Dir(privPath))

	if passphrase == "" {
		fmt.Println()
		fmt.Println("WARNING: Keys stored WITHOUT encryption (insecure)")
	}
}

func readPassphrase(noPassphrase bool) string {
	if noPassphrase {
		return ""
	}
	fmt.Print("Enter passphrase (leave empty for no encryption): ")
	passphraseBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read passphrase: %v\n", err)
		os.Exit(1)
	}
	passphrase := string(passphraseBytes)
	if passphrase == "" {
		return ""
	}

	fmt.Print("Confirm passphrase: ")
	confirmBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read passphrase: %v\n", err)
		os.Exit(1)
	}
	if passphrase != string(confirmBytes) {
		fmt.Fprintln(os.Stderr, "Passphrases do not match.")
		os.Exit(1)
	}
	return passphrase
}

func showCmd(args []string) {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	nodeID := fs.String("node-id", defaultNodeID(), "Node ID whose keypair to show")
	keystoreDir := fs.String("keystore-dir", "", "Keystore directory (default: ~/.junknas/agent/identity)")
	fs.Parse(args)

	_, pubPath := keystorePaths(*nodeID, *keystoreDir)

	pubKeyB64, pubKeyBytes, err := readPubFile(pubPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read public key: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'keygen generate' first to create keys")
		os.Exit(1)
	}

	fileInfo, _ := os.Stat(pubPath)
	modTime := "unknown"
	if fileInfo != nil {
		modTime = fileInfo.ModTime().Format(time.RFC3339)
	}

	fmt.Printf("Identity Public Key (%s):\n", *nodeID)
	fmt.Printf("  %s\n", pubKeyB64)
	fmt.Println()
	fmt.Println("Fingerprint:")
	fmt.Printf("  %s\n", crypto.ComputeFingerprint(pubKeyBytes))
	fmt.Println()
	fmt.Println("Key Type: Ed25519")
	fmt.Printf("Created: %s\n", modTime)
}

func exportCmd(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	nodeID := fs.String("node-id", defaultNodeID(), "Node ID whose keypair to export")
	keystoreDir := fs.String("keystore-dir", "", "Keystore directory (default: ~/.junknas/agent/identity)")
	fs.Parse(args)

	_, pubPath := keystorePaths(*nodeID, *keystoreDir)

	pubKeyData, err := os.ReadFile(pubPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read public key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Public Key:")
	fmt.Print(string(pubKeyData))
	fmt.Println()
	fmt.Println("Distribute this public key, never the private keystore file.")
}

func readPubFile(pubPath string) (b64 string, raw ed25519.PublicKey, err error) {
	data, err := os.ReadFile(pubPath)
	if err != nil {
		return "", nil, err
	}
	b64 = strings.TrimSpace(string(data))
	decoded, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", nil, fmt.Errorf("decode public key: %w", err)
	}
	return b64, ed25519.PublicKey(decoded), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
