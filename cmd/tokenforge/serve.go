package main

import (
	"github.com/spf13/cobra"

	"github.com/verdane/tokenforge/internal/api"
	"github.com/verdane/tokenforge/internal/audit"
	"github.com/verdane/tokenforge/internal/token"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API",
	Long: `Run the REST API over one authenticated token session.

Endpoints:
  GET  /health
  POST /api/v1/keys
  POST /api/v1/sign
  POST /api/v1/verify
  POST /api/v1/attributes
  POST /api/v1/certs/selfsign
  POST /api/v1/receipts

Examples:
  tokenforge serve --config ./token.yaml --addr :8443`,
	RunE: runServe,
}

var (
	serveConfigPath string
	serveAddr       string
	serveMaxConns   int
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to token configuration file (required)")
	_ = serveCmd.MarkFlagRequired("config")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8443", "Listen address")
	serveCmd.Flags().IntVar(&serveMaxConns, "max-conns", 64, "Maximum concurrent connections (0 = unlimited)")
}

func runServe(cmd *cobra.Command, args []string) error {
	return withSession(serveConfigPath, func(sess *token.Session, cfg *token.Config, aud audit.Writer) error {
		handler := api.NewHandler(sess, aud, version, cfg.Token)
		return api.Serve(api.ServerConfig{
			Addr:     serveAddr,
			MaxConns: serveMaxConns,
		}, api.NewRouter(handler))
	})
}
