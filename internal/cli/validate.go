package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wardenhq/warden/internal/config"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <policies-dir>",
		Short: "Validate a CUE policy directory",
		Long: `Compile and validate the policy rules and synchronization policies
in a directory without touching any database.

Example:
  warden validate ./policies`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePolicies(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

// validateReport is the output payload of validate.
type validateReport struct {
	Rules        int `json:"rules"`
	SyncPolicies int `json:"sync_policies"`
}

func (r validateReport) String() string {
	return fmt.Sprintf("ok: %d rule(s), %d sync policy(ies)", r.Rules, r.SyncPolicies)
}

func validatePolicies(cmd *cobra.Command, rootOpts *RootOptions, dir string) error {
	configureLogging(rootOpts.Verbose)
	out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}

	cfg, err := config.LoadDir(dir)
	if err != nil {
		_ = out.Error(err.Error())
		return WrapExitError(ExitFailure, "policy validation failed", err)
	}

	return out.Success(validateReport{
		Rules:        len(cfg.Rules),
		SyncPolicies: len(cfg.SyncPolicies),
	})
}
