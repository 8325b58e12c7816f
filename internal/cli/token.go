package cli

import (
	"fmt"
	"time"

	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/config"

	"github.com/spf13/cobra"
)

// NewTokenCmd mints a bearer token for local testing.
func NewTokenCmd(configPath *string) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a signed token for a student or lecturer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			svc, err := newAuthService(cfg)
			if err != nil {
				return err
			}
			token, err := svc.Issue(args[0], role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", auth.RoleStudent, "student or lecturer")
	return cmd
}

func newAuthService(cfg config.Config) (*auth.Service, error) {
	if cfg.Auth.Secret == "" {
		return nil, fmt.Errorf("auth secret not configured (auth.secret or AUTH_SECRET)")
	}
	return auth.NewService(cfg.Auth.Secret, cfg.Auth.Issuer, config.TTLDuration(cfg.Auth.TokenTTL, 8*time.Hour)), nil
}
