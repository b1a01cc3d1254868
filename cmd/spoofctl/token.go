package main

import (
	"fmt"
	"os"
	"time"

	"github.com/KevinKickass/OpenBusSpoofer/internal/auth"
	"github.com/spf13/cobra"
)

type tokenFlags struct {
	subject   string
	ttl       time.Duration
	secretEnv string
}

func newTokenCmd() *cobra.Command {
	flags := &tokenFlags{}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the diagnostics API",
		Long: `Sign an access token with the secret held in the given environment
variable. The server must be configured with the same variable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv(flags.secretEnv)
			if secret == "" {
				return fmt.Errorf("environment variable %s is not set", flags.secretEnv)
			}
			if flags.subject == "" {
				return fmt.Errorf("required flag --subject not set")
			}

			token, err := auth.NewJWTHandler(secret, flags.ttl).GenerateAccessToken(flags.subject, flags.ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&flags.subject, "subject", "", "Token subject")
	cmd.Flags().DurationVar(&flags.ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&flags.secretEnv, "secret-env", "JWT_SECRET", "Environment variable holding the signing secret")

	return cmd
}
