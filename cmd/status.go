package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"triage-client/internal/presentation/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show the state of a session on the triage service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		client, err := a.apiClient(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to create triage client: %w", err)
		}

		ctx, cancel := requestContext(cmd.Context(), a.cfg.HTTPTimeout)
		defer cancel()
		st, err := client.Status(ctx, args[0])
		if err != nil {
			return fmt.Errorf("failed to load session %q: %w", args[0], err)
		}

		out := cmd.OutOrStdout()
		r := tui.NewRenderer(term.IsTerminal(int(os.Stdout.Fd())))
		fmt.Fprintf(out, "Session:   %s\n", st.SessionID)
		fmt.Fprintf(out, "Completed: %t\n", st.Completed)
		if st.History != "" {
			fmt.Fprintf(out, "\n%s\n", st.History)
		}
		if st.Result != nil {
			fmt.Fprintln(out)
			fmt.Fprint(out, r.Verdict(*st.Result))
		}
		return nil
	},
}
