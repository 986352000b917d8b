package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/contractdesk/internal/auth"
)

func newTokenCmd(c *cli) *cobra.Command {
	var (
		userID string
		email  string
		role   string
		expiry time.Duration
		apiKey bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate a JWT or a new API key",
		Long: `Token signs a JWT with JWT_SECRET for the given user and role.
With --api-key it instead prints a random API key and the API_KEYS entry to configure it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := auth.Role(role)
			if !r.IsValid() {
				return fmt.Errorf("%w %q (valid: %v)", auth.ErrInvalidRole, role, auth.ValidRoles())
			}

			if apiKey {
				key, err := auth.GenerateAPIKey()
				if err != nil {
					return err
				}
				fmt.Fprintln(c.out, key)
				fmt.Fprintf(c.out, "API_KEYS entry: %s:%s:%s\n", userID, r, key)
				return nil
			}

			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("expiry") {
				expiry = cfg.JWTExpiry
			}

			svc := auth.NewService(&auth.Config{
				JWTSecret:   []byte(cfg.JWTSecret),
				TokenExpiry: expiry,
			}, nil, c.logger)
			token, err := svc.GenerateToken(userID, email, r)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(c.out, token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "admin", "user ID for the token")
	cmd.Flags().StringVar(&email, "email", "", "email for the token")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleViewer), "role: admin, renewal_manager, scheduler or viewer")
	cmd.Flags().DurationVar(&expiry, "expiry", 24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&apiKey, "api-key", false, "generate an API key instead of a JWT")
	return cmd
}
