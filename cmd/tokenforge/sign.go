package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/token"
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a file with a token key",
	Long: `Sign a file with an Ed25519 key held on the token.

The token signs the file bytes directly; no digest is applied. The
signature is raw Ed25519, 64 bytes.

Examples:
  tokenforge sign --config ./token.yaml --label signing-key --in msg.bin --out msg.sig`,
	RunE: runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a signature with a token key",
	Long: `Verify a raw Ed25519 signature on the token.

Exits nonzero when the signature does not verify.

Examples:
  tokenforge verify --config ./token.yaml --label signing-key --in msg.bin --sig msg.sig`,
	RunE: runVerify,
}

var (
	signConfigPath string
	signLabel      string
	signInPath     string
	signOutPath    string
	signSigPath    string
)

func init() {
	for _, c := range []*cobra.Command{signCmd, verifyCmd} {
		c.Flags().StringVar(&signConfigPath, "config", "", "Path to token configuration file (required)")
		_ = c.MarkFlagRequired("config")
		c.Flags().StringVar(&signLabel, "label", "", "Key label (defaults to config label)")
		c.Flags().StringVar(&signInPath, "in", "", "Input file to sign or verify (required)")
		_ = c.MarkFlagRequired("in")
	}
	signCmd.Flags().StringVar(&signOutPath, "out", "", "Signature output file (required)")
	_ = signCmd.MarkFlagRequired("out")
	verifyCmd.Flags().StringVar(&signSigPath, "sig", "", "Signature file (required)")
	_ = verifyCmd.MarkFlagRequired("sig")
}

func runSign(cmd *cobra.Command, args []string) error {
	return withSession(signConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		label, err := requireLabel(signLabel, cfg)
		if err != nil {
			return err
		}
		message, err := os.ReadFile(signInPath)
		if err != nil {
			return err
		}

		pair, err := sess.FindKeyPair(label)
		if err != nil {
			return err
		}
		sig, err := sess.SignMessage(pair.Private, message)
		if err != nil {
			return err
		}

		ev := audit.NewEvent(audit.EventDataSigned, audit.ResultSuccess).
			WithObject(audit.Object{Type: "key", Label: label}).
			WithContext(audit.Context{Token: cfg.Token, Dialect: sess.Dialect().String()})
		if err := aud.Write(ev); err != nil {
			return err
		}

		if err := os.WriteFile(signOutPath, sig, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", signOutPath, err)
		}
		fmt.Printf("Signed %s (%d bytes) -> %s\n", signInPath, len(message), signOutPath)
		return nil
	})
}

func runVerify(cmd *cobra.Command, args []string) error {
	return withSession(signConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		label, err := requireLabel(signLabel, cfg)
		if err != nil {
			return err
		}
		message, err := os.ReadFile(signInPath)
		if err != nil {
			return err
		}
		sig, err := os.ReadFile(signSigPath)
		if err != nil {
			return err
		}

		pair, err := sess.FindKeyPair(label)
		if err != nil {
			return err
		}

		verr := sess.VerifyMessage(pair.Public, message, sig)
		result := audit.ResultSuccess
		if verr != nil {
			result = audit.ResultFailure
		}
		ev := audit.NewEvent(audit.EventSignatureVerified, result).
			WithObject(audit.Object{Type: "key", Label: label}).
			WithContext(audit.Context{Token: cfg.Token})
		if err := aud.Write(ev); err != nil {
			return err
		}

		switch {
		case verr == nil:
			fmt.Println("Signature OK")
			return nil
		case errors.Is(verr, token.ErrSignatureInvalid):
			return fmt.Errorf("signature does not verify for %s", signInPath)
		default:
			return verr
		}
	})
}
