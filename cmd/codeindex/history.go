package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent indexing runs",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return usagef("--limit must be positive")
			}
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, "")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			runs, err := s.app.AnalysisService().RunHistory(ctx, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, statusStyle.Render("No runs recorded."))
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tMODE\tSTARTED\tDURATION\tFILES\tFAILED\tCYCLES\tSTALE")
			for _, r := range runs {
				fmt.Fprintf(w, "v%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.Version, r.Mode, humanize.Time(r.StartedAt), r.Duration().Round(1e6),
					r.Files, r.Failed, r.Cycles, r.StaleCandidates)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to show")
	return cmd
}
