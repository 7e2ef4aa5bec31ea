package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	infrajwt "github.com/jonesrussell/north-cloud/price-tracker/infrastructure/jwt"
)

const defaultTokenTTL = 24 * time.Hour

var errTokenSubject = errors.New("exactly one of --crawler or --user is required")

func newTokenCommand(opts *globalOptions) *cobra.Command {
	var (
		crawlerID string
		userID    string
		secret    string
		ttl       time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a signed API token for a crawler or user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (crawlerID == "") == (userID == "") {
				return errTokenSubject
			}
			sub, role := crawlerID, infrajwt.RoleCrawler
			if userID != "" {
				sub, role = userID, infrajwt.RoleUser
			}
			if _, err := uuid.Parse(sub); err != nil {
				return fmt.Errorf("invalid %s id %q: %w", role, sub, err)
			}

			if secret == "" {
				cfg, err := opts.loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}

			token, err := infrajwt.Sign(secret, sub, role, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&crawlerID, "crawler", "", "crawler id")
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default is auth.jwt_secret from the config)")
	cmd.Flags().DurationVar(&ttl, "ttl", defaultTokenTTL, "token lifetime, 0 for no expiry")
	return cmd
}
