package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/certforge"
	"github.com/verdane/tokenforge/internal/token"
)

var keyCmd = &cobra.Command{
	Use:   "key",
	Short: "Key pair operations",
}

var keyGenCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate an Ed25519 key pair on the token",
	Long: `Generate an Ed25519 key pair on the token.

The private key is created sensitive and non-extractable, able to sign
and nothing else. The public key can verify and nothing else.

Examples:
  tokenforge key gen --config ./token.yaml --label signing-key
  tokenforge key gen --config ./token.yaml --label signing-key --id 0a0b`,
	RunE: runKeyGen,
}

var keyExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a public key as PEM",
	Long: `Export the public half of a token key pair as a PUBLIC KEY PEM block.

Examples:
  tokenforge key export --config ./token.yaml --label signing-key --out pub.pem`,
	RunE: runKeyExport,
}

var (
	keyConfigPath string
	keyLabel      string
	keyIDHex      string
	keyOutPath    string
)

func init() {
	keyCmd.AddCommand(keyGenCmd)
	keyCmd.AddCommand(keyExportCmd)

	for _, c := range []*cobra.Command{keyGenCmd, keyExportCmd} {
		c.Flags().StringVar(&keyConfigPath, "config", "", "Path to token configuration file (required)")
		_ = c.MarkFlagRequired("config")
		c.Flags().StringVar(&keyLabel, "label", "", "Key label (defaults to config label)")
	}
	keyGenCmd.Flags().StringVar(&keyIDHex, "id", "", "Key ID in hex (defaults to random)")
	keyExportCmd.Flags().StringVar(&keyOutPath, "out", "", "Output file (defaults to stdout)")
}

func runKeyGen(cmd *cobra.Command, args []string) error {
	return withSession(keyConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		label, err := requireLabel(keyLabel, cfg)
		if err != nil {
			return err
		}

		id, err := resolveKeyID(keyIDHex)
		if err != nil {
			return err
		}

		pair, err := sess.GenerateKeyPair(token.KeySpec{Label: label, ID: id})
		if err != nil {
			return err
		}

		point, err := sess.ECPoint(pair.Public)
		if err != nil {
			return err
		}

		ev := audit.NewEvent(audit.EventKeyPairGenerated, audit.ResultSuccess).
			WithObject(audit.Object{Type: "key", Label: label}).
			WithContext(audit.Context{Token: cfg.Token, Dialect: sess.Dialect().String()})
		if err := aud.Write(ev); err != nil {
			return err
		}

		fmt.Printf("Generated Ed25519 key pair %q\n", label)
		fmt.Printf("  Public handle:  %d\n", pair.Public)
		fmt.Printf("  Private handle: %d\n", pair.Private)
		fmt.Printf("  EC point:       %s\n", hex.EncodeToString(point))
		return nil
	})
}

func runKeyExport(cmd *cobra.Command, args []string) error {
	return withSession(keyConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		label, err := requireLabel(keyLabel, cfg)
		if err != nil {
			return err
		}

		pair, err := sess.FindKeyPair(label)
		if err != nil {
			return err
		}
		pub, err := sess.PublicKeyValue(pair.Public)
		if err != nil {
			return err
		}
		pemBytes, err := certforge.EncodePublicKeyPEM(pub)
		if err != nil {
			return err
		}

		if keyOutPath == "" {
			fmt.Print(string(pemBytes))
			return nil
		}
		if err := os.WriteFile(keyOutPath, pemBytes, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", keyOutPath, err)
		}
		fmt.Printf("Public key written to %s\n", keyOutPath)
		return nil
	})
}
