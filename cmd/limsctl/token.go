package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"lims-forms/internal/auth"
	"lims-forms/internal/metadata"
)

var (
	tokenUser  string
	tokenRoles []string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a development access token",
	Long: `Token signs an access token with the configured jwt_secret. Real tokens
are issued by the LIMS backend; this is for local development.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tok, err := auth.GenerateAccessToken(tokenUser, tokenRoles, cfg.JWTSecret, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "dev", "user id (token subject)")
	tokenCmd.Flags().StringSliceVar(&tokenRoles, "role", []string{metadata.RoleTechnician}, "roles to grant")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
