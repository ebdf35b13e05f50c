package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expenses/internal/core"
	"expenses/internal/form"
	"expenses/internal/log"
	"expenses/internal/store"
)

func newAddCommand(rt *runtime) *cobra.Command {
	var name, category, amount string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.NewContext(cmd.Context(), rt.logger)
			st, _, closeFn, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn(context.WithoutCancel(ctx))

			f := form.New(st, nil)
			f.Name = name
			if category != "" {
				if err := f.SetCategory(category); err != nil {
					return err
				}
			}
			if amount != "" {
				if err := f.SetAmountText(amount); err != nil {
					return fmt.Errorf("%w: %q", err, amount)
				}
			}
			rec, err := f.Confirm(ctx)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "added %s %q %s %s\n",
				rec.ID, rec.Name, rec.Category, core.FormatAmount(rec.Amount))
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "expense name (required)")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringVar(&category, "category", "", "Business or Personal (default Personal)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount, e.g. 12.50 or 12,50 (default 0)")

	return cmd
}

func newListCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses in display order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.NewContext(cmd.Context(), rt.logger)
			st, _, closeFn, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn(context.WithoutCancel(ctx))

			if asJSON {
				data, err := core.EncodeRecords(st.Items())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return writeTable(cmd.OutOrStdout(), st)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the persisted JSON form")
	return cmd
}

func writeTable(out io.Writer, st *store.Store) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tCATEGORY\tAMOUNT")
	for i, r := range st.Items() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, r.Name, r.Category, core.FormatAmount(r.Amount))
	}
	fmt.Fprintf(tw, "\tTOTAL\t\t%s\n", core.FormatAmount(st.Total()))
	return tw.Flush()
}

func newRemoveCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "remove OFFSET...",
		Short: "Remove expenses by zero-based position",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offsets := make([]int, len(args))
			for i, a := range args {
				n, err := strconv.Atoi(a)
				if err != nil {
					return fmt.Errorf("offset %q: %w", a, err)
				}
				offsets[i] = n
			}

			ctx := log.NewContext(cmd.Context(), rt.logger)
			st, _, closeFn, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeFn(context.WithoutCancel(ctx))

			if err := st.RemoveAt(ctx, offsets...); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d, %d left\n", len(args), st.Len())
			return err
		},
	}
}

func newHistoryCommand(rt *runtime) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded store events (sqlite backend)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := log.NewContext(cmd.Context(), rt.logger)
			events, closeFn, err := rt.openEventLog()
			if err != nil {
				return err
			}
			defer closeFn()

			list, err := events.ListEvents(ctx, rt.cfg.StoreKey, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWHEN\tKIND\tCOUNT")
			for _, e := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", e.ID, e.OccurredAt.Format("2006-01-02 15:04:05"), e.Kind, e.RecordCount)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of events to show")
	return cmd
}
