package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/norkodev/finbot/internal/cli"
	"github.com/norkodev/finbot/internal/common"
	"github.com/norkodev/finbot/internal/normalize"
	"github.com/spf13/cobra"
)

func merchantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "Inspect merchant memory",
		Long: `Merchant memory maps a merchant key to a category. Entries are learned
from rule and AI results or created by manual corrections, which always
take precedence.`,
	}

	cmd.AddCommand(listMerchantsCmd())
	cmd.AddCommand(showMerchantCmd())
	cmd.AddCommand(deleteMerchantCmd())

	return cmd
}

func listMerchantsCmd() *cobra.Command {
	var source string
	var refresh bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List known merchants",
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

			if refresh {
				if err := store.RefreshMerchantStats(ctx); err != nil {
					return fmt.Errorf("failed to refresh merchant statistics: %w", err)
				}
			}

			merchants, err := store.GetAllMerchants(ctx)
			if err != nil {
				return fmt.Errorf("failed to list merchants: %w", err)
			}
			sort.SliceStable(merchants, func(i, j int) bool {
				return merchants[i].TransactionCount > merchants[j].TransactionCount
			})

			out := cmd.OutOrStdout()
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, header("MERCHANT", "CATEGORY", "SOURCE", "TXNS", "TOTAL", "SUBSCRIPTION"))
			shown := 0
			for _, m := range merchants {
				if source != "" && string(m.Source) != source {
					continue
				}
				sub := ""
				if m.IsSubscription {
					sub = m.SubscriptionCadence
				}
				label := m.Category
				if m.Subcategory != "" {
					label += "/" + m.Subcategory
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					truncate(m.NormalizedName, 36),
					label,
					cli.SubtleStyle.Render(string(m.Source)),
					m.TransactionCount,
					cli.FormatAmount(m.TotalAmount),
					sub)
				shown++
			}
			_ = w.Flush()

			if shown == 0 {
				fmt.Fprintln(out, cli.SubtitleStyle.Render("No merchants found."))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&source, "source", "s", "", "Only merchants from this source (manual, auto)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Recompute transaction counts and totals first")

	return cmd
}

func showMerchantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one merchant and its aliases",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			desc := normalize.Description(strings.Join(args, " "))
			m, err := store.FindMerchant(ctx, normalize.MerchantKey(desc), desc)
			if errors.Is(err, common.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("No merchant matches "+desc))
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to look up merchant: %w", err)
			}

			body := fmt.Sprintf("Key: %s\n", m.NormalizedName) +
				fmt.Sprintf("Category: %s/%s\n", m.Category, m.Subcategory) +
				fmt.Sprintf("Source: %s\n", m.Source) +
				fmt.Sprintf("Transactions: %d (total %s, average %s)\n",
					m.TransactionCount, m.TotalAmount.StringFixed(2), m.AverageAmount.StringFixed(2))
			if m.LastSeen != nil {
				body += fmt.Sprintf("Last seen: %s\n", m.LastSeen.Format("2006-01-02"))
			}
			if m.IsSubscription {
				body += fmt.Sprintf("Subscription: %s\n", m.SubscriptionCadence)
			}
			if len(m.Aliases) > 0 {
				body += "Aliases:\n  " + strings.Join(m.Aliases, "\n  ")
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBox(m.Name, strings.TrimRight(body, "\n")))
			return nil
		},
	}
}

func deleteMerchantCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Forget a merchant",
		Long:  `Remove a merchant from memory. Its transactions keep their categories.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			key := normalize.Description(args[0])
			if !force && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(),
				fmt.Sprintf("%s Forget merchant %s?", cli.WarningIcon, cli.InfoStyle.Render(key))) {
				fmt.Fprintln(cmd.OutOrStdout(), cli.SubtitleStyle.Render("Deletion cancelled."))
				return nil
			}

			if err := store.DeleteMerchant(ctx, key); err != nil {
				if errors.Is(err, common.ErrNotFound) {
					return common.NewUserError("no merchant with key "+key, err)
				}
				return fmt.Errorf("failed to delete merchant: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted merchant "+key))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Skip confirmation prompt")

	return cmd
}
