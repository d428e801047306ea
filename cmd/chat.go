package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"triage-client/handler"
	"triage-client/internal/presentation/tui"
	"triage-client/internal/usecase"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive triage conversation",
	Long: `Describe your symptoms and answer the follow-up questions until a recommendation is given.

Commands: /retry re-sends the last failed request, /reset starts over, /quit exits.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		client, err := a.apiClient(ctx)
		if err != nil {
			return fmt.Errorf("failed to create triage client: %w", err)
		}
		session, err := usecase.NewSession(client, usecase.WithLogger(a.logger))
		if err != nil {
			return err
		}

		opts := []handler.Option{
			handler.WithMaxRetries(a.cfg.MaxRetries),
			handler.WithLogger(a.logger),
		}
		archiver, err := a.archiver()
		if err != nil {
			return err
		}
		if archiver != nil {
			opts = append(opts, handler.WithArchiver(archiver))
		}
		h, err := handler.New(session, opts...)
		if err != nil {
			return err
		}
		defer h.Close()

		a.serveMetrics(ctx)

		rich := term.IsTerminal(int(os.Stdout.Fd()))
		loop := &chatLoop{
			handler:  h,
			renderer: tui.NewRenderer(rich),
			out:      cmd.OutOrStdout(),
			echo:     !term.IsTerminal(int(os.Stdin.Fd())),
		}
		return loop.run(ctx, cmd.InOrStdin())
	},
}

// chatLoop drives a handler from line-oriented input.
type chatLoop struct {
	handler  *handler.Handler
	renderer *tui.Renderer
	out      io.Writer
	// echo repeats user input, for when stdin is not a terminal.
	echo bool
	// shown counts transcript entries already written to out.
	shown int
}

func (l *chatLoop) run(ctx context.Context, in io.Reader) error {
	fmt.Fprint(l.out, l.renderer.Banner())
	fmt.Fprint(l.out, l.renderer.Status(l.handler.View()))

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		quit, err := l.handle(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if quit {
			return nil
		}
	}
	return scanner.Err()
}

func (l *chatLoop) handle(ctx context.Context, line string) (quit bool, err error) {
	var (
		done    <-chan usecase.Snapshot
		sendErr error
	)
	switch strings.TrimSpace(line) {
	case "/quit", "/exit":
		return true, nil
	case "/reset":
		v := l.handler.Reset()
		l.shown = 0
		fmt.Fprintln(l.out)
		fmt.Fprint(l.out, l.renderer.Status(v))
		return false, nil
	case "/retry":
		done, sendErr = l.handler.Retry(ctx)
	default:
		done, sendErr = l.handler.Submit(ctx, line)
	}
	if sendErr != nil {
		fmt.Fprintln(l.out, describe(sendErr))
		fmt.Fprint(l.out, l.renderer.Status(l.handler.View()))
		return false, nil
	}

	// The user's own entry is already on screen unless input is piped.
	view := l.handler.View()
	if l.echo {
		l.flush(view)
	} else {
		l.shown = len(view.Transcript)
	}
	fmt.Fprint(l.out, l.renderer.Status(view))

	select {
	case <-done:
	case <-ctx.Done():
		return true, ctx.Err()
	}

	view = l.handler.View()
	l.flush(view)
	fmt.Fprint(l.out, l.renderer.Status(view))
	return false, nil
}

// flush writes transcript entries not yet shown.
func (l *chatLoop) flush(v handler.View) {
	if l.shown > len(v.Transcript) {
		l.shown = 0
	}
	for _, e := range v.Transcript[l.shown:] {
		fmt.Fprintln(l.out, l.renderer.Entry(e))
	}
	l.shown = len(v.Transcript)
}

func describe(err error) string {
	var ue *usecase.Error
	switch {
	case errors.Is(err, handler.ErrEmptyInput):
		return "Please enter some text."
	case errors.Is(err, handler.ErrBusy):
		return "Still processing the previous message."
	case errors.Is(err, handler.ErrConcluded):
		return "This session has concluded. Type /reset to start over."
	case errors.Is(err, handler.ErrRetriesExceeded):
		return "Retry limit reached. Enter new text or /reset."
	case errors.As(err, &ue) && ue.Message != "":
		return ue.Message
	default:
		return err.Error()
	}
}
