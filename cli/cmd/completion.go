package cmd

import (
	"github.com/spf13/cobra"
)

var completionCmd = &cobra.Command{
	Use:   "completion [bash|zsh|fish|powershell]",
	Short: "Generate shell completion scripts",
	Long: `Generate shell completion scripts for sharedmods.

To load completions:

Bash:
  $ source <(sharedmods completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ sharedmods completion bash > /etc/bash_completion.d/sharedmods
  # macOS:
  $ sharedmods completion bash > $(brew --prefix)/etc/bash_completion.d/sharedmods

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ sharedmods completion zsh > "${fpath[1]}/_sharedmods"

  # You will need to start a new shell for this setup to take effect.

Fish:
  $ sharedmods completion fish | source

  # To load completions for each session, execute once:
  $ sharedmods completion fish > ~/.config/fish/completions/sharedmods.fish

PowerShell:
  PS> sharedmods completion powershell | Out-String | Invoke-Expression

  # To load completions for every new session, run:
  PS> sharedmods completion powershell > sharedmods.ps1
  # and source this file from your PowerShell profile.
`,
	DisableFlagsInUseLine: true,
	Annotations:           map[string]string{skipConfig: "true"},
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
		default:
			return cmd.Root().GenPowerShellCompletionWithDesc(out)
		}
	},
}
