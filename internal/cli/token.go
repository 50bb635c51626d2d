package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"deltacar/server/internal/config"
	"deltacar/server/internal/token"
)

var (
	tokenEmail  string
	tokenClaims map[string]string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an access token",
	Long: `Signs a token with ACCESS_TOKEN_SECRET exactly as POST /jwt would,
for calling the order endpoints by hand.`,
	Args: cobra.NoArgs,
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email identity to embed")
	tokenCmd.Flags().StringToStringVar(&tokenClaims, "claim", nil, "extra claim as key=value (repeatable)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenEmail == "" {
		return errors.New("--email is required")
	}
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := token.NewService(cfg.TokenSecret)
	if err != nil {
		return err
	}

	payload := make(map[string]any, len(tokenClaims)+1)
	for k, v := range tokenClaims {
		payload[k] = v
	}
	payload["email"] = tokenEmail

	signed, err := svc.Issue(payload)
	if err != nil {
		return err
	}
	cmd.Println(signed)
	return nil
}
