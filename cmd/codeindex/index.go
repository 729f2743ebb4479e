package main

import (
	"strings"

	"codeindex/internal/core/ports"

	"github.com/spf13/cobra"
)

type indexFlags struct {
	full        bool
	incremental bool
	changed     []string
	since       string
}

// mode picks the run mode. --changed and --since imply --incremental.
func (f indexFlags) mode() (ports.Mode, error) {
	if f.full && f.incremental {
		return "", usagef("--full and --incremental are mutually exclusive")
	}
	if len(f.changed) > 0 && strings.TrimSpace(f.since) != "" {
		return "", usagef("--changed and --since are mutually exclusive")
	}
	derived := len(f.changed) > 0 || strings.TrimSpace(f.since) != ""
	if f.full && derived {
		return "", usagef("--changed and --since require an incremental run")
	}
	if f.incremental || derived {
		return ports.ModeIncremental, nil
	}
	return ports.ModeFull, nil
}

func (f indexFlags) request() (ports.IndexRequest, error) {
	mode, err := f.mode()
	if err != nil {
		return ports.IndexRequest{}, err
	}
	req := ports.IndexRequest{Mode: mode, Since: strings.TrimSpace(f.since)}
	for _, p := range f.changed {
		if p = strings.TrimSpace(p); p != "" {
			req.Changed = append(req.Changed, p)
		}
	}
	return req, nil
}

func newIndexCmd(flags *globalFlags) *cobra.Command {
	var opts indexFlags
	cmd := &cobra.Command{
		Use:   "index [root]",
		Short: "Index the tree and promote a new snapshot",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			req, err := opts.request()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, firstArg(a))
			if err != nil {
				return err
			}
			defer s.Close(ctx)

			result, err := s.app.AnalysisService().Index(ctx, req)
			if err != nil {
				return err
			}
			printIndexResult(cmd.OutOrStdout(), result, s.cfg.Summary.TopN)
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.full, "full", false, "re-extract every file (default)")
	cmd.Flags().BoolVar(&opts.incremental, "incremental", false, "re-extract only changed files against the current snapshot")
	cmd.Flags().StringSliceVar(&opts.changed, "changed", nil, "explicit changed paths, relative to the root")
	cmd.Flags().StringVar(&opts.since, "since", "", "git ref to diff against for the changed set")
	return cmd
}

func firstArg(a []string) string {
	if len(a) == 0 {
		return ""
	}
	return a[0]
}
