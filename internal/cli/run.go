package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/clockwork"
	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/reaction"
	"github.com/wardenhq/warden/internal/store"
)

// RunOptions holds flags for the run and preview commands.
type RunOptions struct {
	*RootOptions
	Database string
	Policies string

	// Tokens allows overriding the identifier generator (for testing).
	// Defaults to UUIDv7Generator.
	Tokens clockwork.TokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <change-request.yaml>",
		Short: "Process one change request to convergence",
		Long: `Process an identity change request through the full convergence loop:
policy evaluation, threshold enforcement, change execution and auditing.

Example:
  warden run --db ./warden.db --policies ./policies change.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRequest(cmd, opts, args[0], false)
		},
	}

	addRunFlags(cmd, opts)
	return cmd
}

// NewPreviewCommand creates the preview command: the same convergence
// computation with no side effects, reporting the projected outcome.
func NewPreviewCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "preview <change-request.yaml>",
		Short: "Dry-run a change request without executing changes",
		Long: `Compute the outcome of a change request without writing anything:
no change execution, no counter increments, no audit records.

Example:
  warden preview --db ./warden.db --policies ./policies change.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRequest(cmd, opts, args[0], true)
		},
	}

	addRunFlags(cmd, opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *RunOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Policies, "policies", "", "path to CUE policy directory (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("policies")
}

// runReport is the output payload of run and preview.
type runReport struct {
	RequestID string   `json:"request_id"`
	Mode      string   `json:"mode"`
	Status    string   `json:"status"`
	Message   string   `json:"message,omitempty"`
	TaskID    string   `json:"task_id,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	Waves     int      `json:"waves"`
	Clicks    int      `json:"clicks"`
}

func (r runReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "request %s: %s (%s), %d wave(s) in %d click(s)", r.RequestID, r.Status, r.Mode, r.Waves, r.Clicks)
	if r.TaskID != "" {
		fmt.Fprintf(&b, "\n  background task: %s", r.TaskID)
	}
	for _, w := range r.Warnings {
		fmt.Fprintf(&b, "\n  warning: %s", w)
	}
	return b.String()
}

func executeRequest(cmd *cobra.Command, opts *RunOptions, requestPath string, preview bool) error {
	configureLogging(opts.Verbose)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cfg, err := config.LoadDir(opts.Policies)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load policies", err)
	}
	slog.Info("policies loaded", "rules", len(cfg.Rules), "sync_policies", len(cfg.SyncPolicies))

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	req, err := LoadChangeRequest(requestPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load change request", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	lens, err := BuildLens(ctx, st, cfg, req)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build lens context", err)
	}
	lens.Preview = preview

	tokens := opts.Tokens
	if tokens == nil {
		tokens = clockwork.UUIDv7Generator{}
	}

	engine := clockwork.New(clockwork.Collaborators{
		Projector: clockwork.NewRuleProjector(cfg.Rules, reaction.NewCUEEvaluator()),
		Executor:  clockwork.NewStoreChangeExecutor(st),
		Conflicts: clockwork.NewStoreConflictResolver(st, tokens, 0),
		Audit:     clockwork.NewStoreAuditSink(st),
		Counters:  st,
		Scheduler: clockwork.NewStoreTaskScheduler(st, tokens),
	})

	mode, err := engine.Run(ctx, lens, &clockwork.Task{ID: req.RequestID})
	report := runReport{
		RequestID: req.RequestID,
		Mode:      string(mode),
		Status:    string(lens.Result.Status),
		Message:   lens.Result.Message,
		TaskID:    lens.Result.BackgroundTaskID,
		Warnings:  lens.Result.Warnings,
		Waves:     lens.ExecutionWave,
		Clicks:    lens.ClickCount(),
	}
	if err != nil {
		_ = out.Error(report.String())
		return WrapExitError(ExitFailure, "run failed", err)
	}
	return out.Success(report)
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}
