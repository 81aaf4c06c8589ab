// Command token issues a bearer token for a ledger identity using the
// server's signing configuration. Intended for local development and ops.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"treasury/internal/platform/config"
	vaultauth "treasury/internal/vault/auth"
	"treasury/internal/vault/models"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a treasury API bearer token",
		Long: `Issue a bearer token for a ledger identity. The signing key, issuer and
audience come from the same TREASURY_* settings the server reads.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			id, err := models.ParseIdentity(subject)
			if err != nil {
				return fmt.Errorf("--subject: %w", err)
			}
			lifetime := cfg.Auth.TokenTTL
			if ttl > 0 {
				lifetime = ttl
			}

			tokens := vaultauth.NewTokenService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
			token, err := tokens.IssueToken(id, lifetime)
			if err != nil {
				return fmt.Errorf("issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "ledger identity the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TREASURY_AUTH_TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
