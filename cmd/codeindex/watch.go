package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"codeindex/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var withUI bool
	cmd := &cobra.Command{
		Use:   "watch [root]",
		Short: "Re-index incrementally whenever files change",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, a []string) error {
			ctx := cmd.Context()
			s, err := openSession(ctx, flags, firstArg(a))
			if err != nil {
				return err
			}
			defer s.Close(context.WithoutCancel(ctx))

			if withUI {
				err = watchUI(ctx, s.app.WatchService())
			} else {
				err = watchPlain(ctx, s.app.WatchService(), cmd.OutOrStdout(), s.cfg.Summary.TopN)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&withUI, "ui", false, "show findings in an interactive terminal UI")
	return cmd
}

func watchPlain(ctx context.Context, svc ports.WatchService, out io.Writer, topN int) error {
	return svc.Watch(ctx, func(result ports.IndexResult, err error) {
		if err != nil {
			slog.Error("index run failed", "error", err)
			return
		}
		printIndexResult(out, result, topN)
	})
}

// watchUI runs the watch loop behind a bubbletea program. Quitting the UI
// stops the watcher.
func watchUI(ctx context.Context, svc ports.WatchService) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Logs would tear the alternate screen.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	p := tea.NewProgram(initialModel(), tea.WithAltScreen(), tea.WithContext(ctx))
	done := make(chan error, 1)
	go func() {
		done <- svc.Watch(ctx, func(result ports.IndexResult, err error) {
			p.Send(updateMsg{result: result, err: err, at: time.Now()})
		})
		p.Quit()
	}()

	_, uiErr := p.Run()
	cancel()
	watchErr := <-done
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return watchErr
}
