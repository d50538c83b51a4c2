package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/subscription"
	"github.com/spf13/cobra"
)

func subscriptionsCmd() *cobra.Command {
	var mark bool
	var activeMonths int

	cmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Detect recurring charges",
		Long: `Find merchants that charge a stable amount about once a month, plus
known streaming and gym services. With --mark the merchants and their
transactions are flagged as subscriptions.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			detector := subscription.NewDetector(store, nil)
			var subs []subscription.Subscription
			if mark {
				subs, err = detector.Mark(ctx)
			} else {
				subs, err = detector.Detect(ctx)
			}
			if err != nil {
				return err
			}
			if activeMonths > 0 {
				subs = subscription.Active(subs, time.Now(), activeMonths)
			}

			out := cmd.OutOrStdout()
			if len(subs) == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No subscriptions detected."))
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, header("MERCHANT", "CATEGORY", "CADENCE", "AVERAGE", "CHARGES", "LAST"))
			for _, s := range subs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					truncate(s.MerchantName, 30),
					s.Category,
					s.Cadence,
					cli.FormatAmount(s.AverageAmount),
					s.Count,
					s.LastPayment.Format("2006-01-02"))
			}
			_ = w.Flush()

			if mark {
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Marked %d subscriptions", len(subs))))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&mark, "mark", false, "Flag detected merchants and transactions")
	cmd.Flags().IntVar(&activeMonths, "active", 0, "Only subscriptions charged in the last N months")

	return cmd
}
