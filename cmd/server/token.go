package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/formtagger-api/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token signed with the configured secret",
		Long: `Signs an HS256 token carrying the "key" claim with SECRET_KEY.
Intended for local testing against a running server.`,
		Example: `  TOKEN=$(formtagger token)
  curl -H "Authorization: Bearer $TOKEN" -F "file=@form.png;type=image/png" \
    http://localhost:8080/inference_image/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(false)
			if err != nil {
				return err
			}

			token, err := auth.Issue(cfg.SecretKey, key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", auth.ExpectedClaim, "Value of the key claim")

	return cmd
}
