package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"rvl-week-service/internal/attendance"
	"rvl-week-service/internal/config"
	"rvl-week-service/internal/infra/memory"
	"rvl-week-service/internal/unlock"
)

// NewTokenCmd prints the QR deep link for a day.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		day     int
		ttl     time.Duration
		baseURL string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue the signed unlock link printed into a day's QR code",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if ttl == 0 {
				ttl = config.TTLDuration(cfg.Unlock.TokenTTL, 36*time.Hour)
			}
			// minting never touches progress, so an empty store is enough
			validator, err := attendance.New(attendance.Config{Secret: []byte(cfg.Unlock.Secret)}, memory.NewProgressStore(nil))
			if err != nil {
				return err
			}
			token, err := validator.IssueToken(day, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), baseURL+unlock.Link{Day: day, Token: token}.String())
			return err
		},
	}
	cmd.Flags().IntVar(&day, "day", 0, "event day number")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to unlock.token_ttl)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "public origin prepended to the link")
	_ = cmd.MarkFlagRequired("day")
	return cmd
}
