package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/homecare-api/internal/config"
	"github.com/jwalitptl/homecare-api/pkg/auth"
)

// tokenCmd mints a bearer token. Identity is owned by an upstream service;
// this exists for operators and local development.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a signed access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			role, _ := cmd.Flags().GetString("role")
			role = strings.ToUpper(role)
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			actor := auth.Actor{Role: auth.Role(role)}
			if !actor.Role.Valid() {
				return fmt.Errorf("unknown role %q", role)
			}
			if subject == "" {
				actor.ID = uuid.New()
			} else {
				id, err := uuid.Parse(subject)
				if err != nil {
					return fmt.Errorf("invalid subject: %w", err)
				}
				actor.ID = id
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.JWT.TTL
			}

			token, err := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.Issuer, ttl).Issue(actor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "subject=%s role=%s expires_in=%s\n", actor.ID, actor.Role, ttl)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("role", string(auth.RoleCustomer), "CUSTOMER, PROVIDER or ADMIN")
	cmd.Flags().String("subject", "", "Actor id (random when empty)")
	cmd.Flags().Duration("ttl", 0, "Token lifetime (jwt.ttl when zero)")
	return cmd
}
