package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/longregen/counsel/internal/adapters/auth"
	"github.com/longregen/counsel/internal/domain/models"
)

// tokenCmd mints a token for a staff member or a test client. Staff log in
// through the firm's own identity provider in production; this covers
// bootstrap and local development.
func tokenCmd() *cobra.Command {
	var (
		userID      string
		role        string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed connection token",
		Example: `  counsel token --user lawyer-42 --role lawyer
  counsel token --user mod-1 --role moderator --permission moderate --ttl 8h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			parsed := models.ParseRole(role)
			if string(parsed) != role {
				return fmt.Errorf("unknown role %q", role)
			}

			issuer, err := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}

			identity := &models.ConnectionIdentity{
				UserID:          userID,
				IsAuthenticated: true,
				Role:            parsed,
				Permissions:     permissions,
			}
			token, expiresAt, err := issuer.Issue(identity, ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id carried by the token")
	cmd.Flags().StringVar(&role, "role", string(models.RoleLawyer), "client, lawyer, moderator or admin")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "extra permission, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
