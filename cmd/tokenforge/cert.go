package main

import (
	"crypto"
	"crypto/x509/pkix"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/certforge"
	"github.com/verdane/tokenforge/internal/token"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Certificate operations",
}

var certSelfSignCmd = &cobra.Command{
	Use:   "selfsign",
	Short: "Assemble a self-signed certificate",
	Long: `Assemble a self-signed X.509 certificate for a token key pair.

The TBS certificate is built and DER-encoded locally, digested, and the
digest is signed on the token. The assembled certificate is verified
before it is written.

Examples:
  tokenforge cert selfsign --config ./token.yaml --label signing-key --cn localhost --out cert.pem
  tokenforge cert selfsign --config ./token.yaml --label signing-key --cn localhost --days 365 --digest sha1`,
	RunE: runCertSelfSign,
}

var (
	certConfigPath string
	certLabel      string
	certCN         string
	certDays       int
	certDigest     string
	certOutPath    string
)

func init() {
	certCmd.AddCommand(certSelfSignCmd)

	certSelfSignCmd.Flags().StringVar(&certConfigPath, "config", "", "Path to token configuration file (required)")
	_ = certSelfSignCmd.MarkFlagRequired("config")
	certSelfSignCmd.Flags().StringVar(&certLabel, "label", "", "Key label (defaults to config label)")
	certSelfSignCmd.Flags().StringVar(&certCN, "cn", "", "Subject common name (required)")
	_ = certSelfSignCmd.MarkFlagRequired("cn")
	certSelfSignCmd.Flags().IntVar(&certDays, "days", 100, "Validity in days")
	certSelfSignCmd.Flags().StringVar(&certDigest, "digest", "sha256", "Digest over the TBS bytes (sha256 or sha1)")
	certSelfSignCmd.Flags().StringVar(&certOutPath, "out", "cert.pem", "Output file")
}

func runCertSelfSign(cmd *cobra.Command, args []string) error {
	return withSession(certConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		label, err := requireLabel(certLabel, cfg)
		if err != nil {
			return err
		}

		var digest crypto.Hash
		switch certDigest {
		case "sha256":
			digest = crypto.SHA256
		case "sha1":
			digest = crypto.SHA1
		default:
			return fmt.Errorf("unsupported digest %q (want sha256 or sha1)", certDigest)
		}

		pair, err := sess.FindKeyPair(label)
		if err != nil {
			return err
		}

		der, err := certforge.SelfSign(sess, pair, certforge.Request{
			Subject: pkix.Name{CommonName: certCN},
			Days:    certDays,
			Digest:  digest,
		})
		if err != nil {
			return err
		}

		cert, err := certforge.ParsePEM(certforge.EncodePEM(der))
		if err != nil {
			return err
		}

		ev := audit.NewEvent(audit.EventCertSelfSigned, audit.ResultSuccess).
			WithObject(audit.Object{Type: "certificate", Label: label, Serial: cert.SerialNumber.String()}).
			WithContext(audit.Context{Token: cfg.Token, Digest: certDigest})
		if err := aud.Write(ev); err != nil {
			return err
		}

		if err := os.WriteFile(certOutPath, certforge.EncodePEM(der), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", certOutPath, err)
		}
		fmt.Printf("Certificate written to %s\n", certOutPath)
		fmt.Printf("  Subject: CN=%s\n", certCN)
		fmt.Printf("  Serial:  %s\n", cert.SerialNumber)
		fmt.Printf("  Expires: %s\n", cert.NotAfter.Format("2006-01-02"))
		return nil
	})
}
