package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dtn-go/bpsecpolicy/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.json>",
	Short: "Validate a BPSec policy config file",
	Long: `Load and validate a BPSec policy configuration file.

Checks for JSON syntax errors, unrecognized roles/services/contexts, and
unresolved securityFailureEventSetReference entries.
Exits 0 on success, 1 on validation failure.`,
	Example: `  bpsecpolicy validate /etc/bpsecpolicy/policy.jsonc
  bpsecpolicy validate policy.jsonc && echo "config OK"`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, err := config.Load(args[0])
	if err != nil {
		cmd.PrintErrln(err)
		cmd.SilenceUsage = true
		cmd.SilenceErrors = true
		return fmt.Errorf("validation failed")
	}
	cmd.Println("config OK")
	return nil
}
