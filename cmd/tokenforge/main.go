// Command tokenforge drives Ed25519 keys on a PKCS#11 token: key
// generation, raw signing and verification, public key export, and
// self-signed certificate assembly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables (injected by GoReleaser)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tokenforge",
	Short: "Ed25519 workflows on PKCS#11 tokens",
	Long: `tokenforge drives Ed25519 key material held on a PKCS#11 token.

The token signs raw bytes with no internal hashing, so signatures are
deterministic and always 64 bytes. Private keys are generated sensitive
and non-extractable; only the public half ever leaves the device.

Configuration is a YAML file naming the PKCS#11 library, the token, and
the environment variable holding the user PIN.

Examples:
  # List slots and tokens (no authentication needed)
  tokenforge hsm list --lib /usr/lib/utimaco/libcs_pkcs11_R3.so

  # Generate a key pair and export its public key
  tokenforge key gen --config ./token.yaml --label signing-key
  tokenforge key export --config ./token.yaml --label signing-key --out pub.pem

  # Sign and verify a file
  tokenforge sign --config ./token.yaml --label signing-key --in msg.bin --out msg.sig
  tokenforge verify --config ./token.yaml --label signing-key --in msg.bin --sig msg.sig

  # Assemble a self-signed certificate
  tokenforge cert selfsign --config ./token.yaml --label signing-key --cn localhost --out cert.pem`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(hsmCmd)
	rootCmd.AddCommand(keyCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(serveCmd)
}
