package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for the policy CLI's commands
and flag names, such as --role and --format. Flag values are not
completed; positional file arguments fall back to the shell's
default file completion.

To load completions, run "completion <shell>" and source the result
the way your shell's completion system expects (bash's
bash_completion.d, zsh's fpath, fish's completions directory, or
PowerShell's profile). Set BPSECPOLICY_CONFIG in the same shell
profile to avoid repeating --config on every invocation.`,
	Example:               completionExample("bpsecpolicy"),
	DisableFlagsInUseLine: true,
	ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
	Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		switch args[0] {
		case "bash":
			return cmd.Root().GenBashCompletionV2(out, true)
		case "zsh":
			return cmd.Root().GenZshCompletion(out)
		case "fish":
			return cmd.Root().GenFishCompletion(out, true)
		case "powershell":
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
		return nil
	},
}

// completionExample builds the shell-specific load instructions shown
// under --help, named after bin so it stays correct if the binary is
// ever renamed or built under a different argv[0].
func completionExample(bin string) string {
	return fmt.Sprintf(`  $ source <(%[1]s completion bash)
  $ %[1]s completion zsh > "${fpath[1]}/_%[1]s"
  $ %[1]s completion fish | source`, bin)
}

func init() {
	rootCmd.AddCommand(completionCmd)
}
