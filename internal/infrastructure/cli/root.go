package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/infrastructure/cli/commands"
)

// NewRootCmd wires the cobra root command.
func NewRootCmd(container *app.Container) *cobra.Command {
	root := &cobra.Command{
		Use:   "kshai [question]",
		Short: "KSHAI - cluster operations assistant",
		Long: "KSHAI talks to a language model about your Kubernetes cluster, runs the kubectl and helm\n" +
			"commands it proposes after your approval, and feeds the results back into the conversation.\n" +
			"Without arguments it starts an interactive session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runChat(cmd.Context(), container, "", cmd.InOrStdin(), cmd.OutOrStdout())
			}
			return runAsk(cmd.Context(), container, askOptions{}, strings.Join(args, " "), cmd.InOrStdin(), cmd.OutOrStdout())
		},
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newChatCommand(container),
		newAskCommand(container),
		newRunCommand(container),
		commands.NewConfigCommand(container),
		commands.NewModelsCommand(container),
		commands.NewAuditCommand(container),
		commands.NewDoctorCommand(container),
		commands.NewVersionCommand(),
	)
	return root
}
