package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/freeeve/starlane/internal/auth"
	"github.com/freeeve/starlane/internal/config"
)

// newTokenCmd mints a bearer token for a user against the server's
// JWT_SECRET, for scripting order submission.
func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue an access token signed with JWT_SECRET",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if ttl == 0 {
				ttl = cfg.TokenTTL
			}
			token, err := auth.NewJWTManager(cfg.JWTSecret, ttl).GenerateAccessToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Duration("ttl", 0, "token lifetime (default TOKEN_TTL)")
	return cmd
}
