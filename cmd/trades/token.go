package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/the-trades-must-flow/internal/api"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the import API",
		Long: `Sign an HS256 bearer token with auth.jwt_secret for local testing
of the import API. The token's subject is the user id.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			auth, err := api.NewAuthenticator(viper.GetString("auth.jwt_secret"))
			if err != nil {
				return err
			}
			token, err := auth.Sign(user, ttl)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "user id to embed as the token subject (required)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
