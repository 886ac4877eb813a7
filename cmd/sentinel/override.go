package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arcwatch/sentinel/internal/bus"
	"github.com/arcwatch/sentinel/internal/clock"
	"github.com/arcwatch/sentinel/internal/config"
	"github.com/arcwatch/sentinel/internal/store"
	"github.com/arcwatch/sentinel/internal/trustgate"
)

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Grant or revoke a trust gate override for a category",
}

var (
	overrideCategory string
	overrideReason   string
	overrideSession  string
	overrideDuration string
)

func init() {
	for _, c := range []*cobra.Command{overrideGrantCmd, overrideRevokeCmd} {
		c.Flags().StringVar(&overrideCategory, "category", "", "category to override (required)")
		c.Flags().StringVar(&overrideReason, "reason", "", "reason for this override")
		c.Flags().StringVar(&overrideSession, "session", "", "interactive session id making this request (required)")
		c.Flags().StringVar(&overrideDuration, "duration", "", `expiry, short syntax ("30m", "4h", "2d"); empty means no expiry`)
		_ = c.MarkFlagRequired("category")
		_ = c.MarkFlagRequired("session")
	}
	overrideCmd.AddCommand(overrideGrantCmd, overrideRevokeCmd)
}

var overrideGrantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant an override, forcing pass for a category",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOverride(cmd.Context(), trustgate.OverrideGranted)
	},
}

var overrideRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke a category, forcing block",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOverride(cmd.Context(), trustgate.OverrideRevoked)
	},
}

func runOverride(ctx context.Context, overrideType string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogger(cfg)

	s, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	clk := clock.New()
	gate, err := trustgate.New(ctx, s, clk, bus.New(), trustgate.DefaultCategories(trustgate.AlphaConfig{
		T1: cfg.T1Alpha, T2: cfg.T2Alpha, T3: cfg.T3Alpha,
	}), cfg.FeedbackWindow)
	if err != nil {
		return fmt.Errorf("initialize trust gate: %w", err)
	}

	if err := gate.SetOverride(ctx, overrideCategory, overrideType, overrideReason, overrideSession, overrideDuration); err != nil {
		return err
	}

	log.Info().Str("category", overrideCategory).Str("type", overrideType).Msg("override: applied")
	return nil
}
