package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/ordersync/internal/config"
	"github.com/smallbiznis/ordersync/internal/kitchen/bridge"
	"github.com/spf13/cobra"
)

var errNoAuthSecret = errors.New("KITCHEN_AUTH_SECRET is not set")

type tokenOptions struct {
	PosID string
	TTL   time.Duration
}

// NewTokenCommand signs a bearer token for the HTTP surface and the kitchen
// link with KITCHEN_AUTH_SECRET.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &tokenOptions{}

	cmd := &cobra.Command{
		Use:           "token",
		Short:         "Issue a signed terminal token",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.Kitchen.AuthSecret == "" {
				return errNoAuthSecret
			}
			posID := opts.PosID
			if posID == "" {
				posID = cfg.PosID
			}
			ttl := opts.TTL
			if ttl <= 0 {
				ttl = cfg.Kitchen.AuthTTL
			}

			now := time.Now().UTC()
			token, err := bridge.IssueToken(cfg.Kitchen.AuthSecret, posID, ttl, now)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(w).Encode(map[string]any{
					"pos_id":     posID,
					"token":      token,
					"expires_at": now.Add(ttl),
				})
			}
			_, err = fmt.Fprintln(w, token)
			return err
		},
	}
	cmd.Flags().StringVar(&opts.PosID, "pos", "", "terminal id (defaults to POS_ID)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 0, "token lifetime (defaults to KITCHEN_AUTH_TTL)")

	return cmd
}
