package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newTraceCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "trace <from> <to>",
		Short: "Print the shortest import chain between two modules",
		Args:  args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, "")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			chain, err := s.app.AnalysisService().TraceImportChain(ctx, a[0], a[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle(fmt.Sprintf("Import chain (%d hops)", len(chain)-1)))
			fmt.Fprintln(out, strings.Join(chain, " -> "))
			return nil
		},
	}
}

func newImpactCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "impact <path>",
		Short: "List the modules that import a file, directly or transitively",
		Args:  args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, "")
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			report, err := s.app.AnalysisService().AnalyzeImpact(ctx, a[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, titleStyle("Impact of "+report.TargetPath))
			printList(out, "Direct importers", report.DirectImporters)
			printList(out, "Transitive importers", report.TransitiveImporters)
			return nil
		},
	}
}
