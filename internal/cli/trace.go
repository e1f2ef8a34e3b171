package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/model"
	"github.com/wardenhq/warden/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
}

// NewTraceCommand creates the trace command: it reads back the audit
// trail of one request in sequence order.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <request-id>",
		Short: "Show the audit trail of a request",
		Long: `List the audit events recorded for a request, in sequence order.

Example:
  warden trace --db ./warden.db req-1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTrace(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// traceReport is the output payload of trace.
type traceReport struct {
	RequestID string             `json:"request_id"`
	Events    []model.AuditEvent `json:"events"`
}

func (r traceReport) String() string {
	if len(r.Events) == 0 {
		return fmt.Sprintf("no audit events for request %s", r.RequestID)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "audit trail for request %s:", r.RequestID)
	for _, ev := range r.Events {
		fmt.Fprintf(&b, "\n  seq %d  wave %d  %s", ev.Seq, ev.Wave, ev.Stage)
		if oid, ok := ev.Payload["focus_oid"].(string); ok {
			fmt.Fprintf(&b, "  focus=%s", oid)
		}
		if status, ok := ev.Payload["status"].(string); ok {
			fmt.Fprintf(&b, "  status=%s", status)
		}
	}
	return b.String()
}

func showTrace(cmd *cobra.Command, opts *TraceOptions, requestID string) error {
	configureLogging(opts.Verbose)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	events, err := st.ListAuditEvents(ctx, requestID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read audit events", err)
	}

	return out.Success(traceReport{RequestID: requestID, Events: events})
}
