package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/smallbiznis/ordersync/internal/config"
	shiftdomain "github.com/smallbiznis/ordersync/internal/shift/domain"
	shiftservice "github.com/smallbiznis/ordersync/internal/shift/service"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

type shiftSummaryOptions struct {
	ShiftID string
	Timeout time.Duration
}

// NewShiftSummaryCommand prints the summary of a shift: frozen for a
// closed shift, live otherwise.
func NewShiftSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &shiftSummaryOptions{}

	cmd := &cobra.Command{
		Use:           "shift-summary",
		Short:         "Print the totals of a shift",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShiftSummary(cmd, rootOpts, opts)
		},
	}
	cmd.Flags().StringVar(&opts.ShiftID, "shift", "", "shift id (defaults to the current shift of POS_ID)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "startup and query timeout")

	return cmd
}

func runShiftSummary(cmd *cobra.Command, rootOpts *RootOptions, opts *shiftSummaryOptions) error {
	var (
		shifts *shiftservice.Service
		cfg    config.Config
	)
	app := fx.New(
		storeModules(),
		fx.NopLogger,
		fx.Populate(&shifts, &cfg),
	)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()

	shiftID := opts.ShiftID
	if shiftID == "" {
		current, ok := shifts.Current(cfg.PosID)
		if !ok {
			return fmt.Errorf("%w: no open shift on %s", shiftdomain.ErrShiftNotFound, cfg.PosID)
		}
		shiftID = current.ID
	}

	summary, err := shifts.Summarize(ctx, shiftID)
	if err != nil {
		return err
	}
	return writeSummary(cmd.OutOrStdout(), rootOpts.Format, shiftID, summary)
}

func writeSummary(w io.Writer, format, shiftID string, s shiftdomain.Summary) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			ShiftID string              `json:"shift_id"`
			Summary shiftdomain.Summary `json:"summary"`
		}{shiftID, s})
	}

	fmt.Fprintf(w, "shift %s\n", shiftID)
	fmt.Fprintf(w, "  orders         %d\n", s.OrdersCount)
	fmt.Fprintf(w, "  total sales    %s\n", s.TotalSales.StringFixed(2))
	for _, t := range slices.Sorted(maps.Keys(s.TotalsByType)) {
		fmt.Fprintf(w, "    %-12s %s (%d)\n", t, s.TotalsByType[t].StringFixed(2), s.CountsByType[t])
	}
	for _, m := range slices.Sorted(maps.Keys(s.PaymentsByMethod)) {
		fmt.Fprintf(w, "  paid %-9s %s\n", m, s.PaymentsByMethod[m].StringFixed(2))
	}
	fmt.Fprintf(w, "  expected cash  %s\n", s.ExpectedCash.StringFixed(2))
	fmt.Fprintf(w, "  cash variance  %s\n", s.CashVariance.StringFixed(2))
	return nil
}
