package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

const (
	bashShellConstant                = "bash"
	zshShellConstant                 = "zsh"
	fishShellConstant                = "fish"
	powerShellConstant               = "powershell"
	unsupportedShellTemplateConstant = "unsupported completion shell %q"
)

func supportedCompletionShells() []string {
	return []string{bashShellConstant, zshShellConstant, fishShellConstant, powerShellConstant}
}

func writeCompletionScript(rootCommand *cobra.Command, shell string, output io.Writer) error {
	switch shell {
	case bashShellConstant:
		return rootCommand.GenBashCompletionV2(output, true)
	case zshShellConstant:
		return rootCommand.GenZshCompletion(output)
	case fishShellConstant:
		return rootCommand.GenFishCompletion(output, true)
	case powerShellConstant:
		return rootCommand.GenPowerShellCompletionWithDesc(output)
	default:
		return fmt.Errorf(unsupportedShellTemplateConstant, shell)
	}
}
