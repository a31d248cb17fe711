package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/kshai/internal/app"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/infrastructure/cli/helpers"
	"github.com/doeshing/kshai/internal/ports"
)

// NewModelsCommand creates the models command with all subcommands
func NewModelsCommand(container *app.Container) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Manage model backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}

	modelsCmd.AddCommand(
		newModelsListCommand(container),
		newModelsTestCommand(container),
		newModelsUseCommand(container),
		newModelsAddCommand(container),
		newModelsRemoveCommand(container),
	)

	return modelsCmd
}

// newModelsListCommand creates the 'models list' subcommand
func newModelsListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listModels(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newModelsTestCommand creates the 'models test' subcommand
func newModelsTestCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "test <name>",
		Short: "Send a short prompt to a model and print the reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testModel(cmd.Context(), cmd.OutOrStdout(), container, args[0])
		},
	}
}

// newModelsUseCommand creates the 'models use' subcommand
func newModelsUseCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Set default model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateConfig(cmd.Context(), container, func(cfg *domain.Config) error {
				return cfg.SetDefaultModel(args[0])
			})
		},
	}
}

// newModelsAddCommand creates the 'models add' subcommand
func newModelsAddCommand(container *app.Container) *cobra.Command {
	var opts modelAddOptions

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a new model definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			return addModel(cmd.Context(), container, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "Model name (identifier)")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "Adapter: anthropic|openai|http|heuristic (inferred from endpoint when empty)")
	cmd.Flags().StringVar(&opts.Endpoint, "endpoint", "", "Provider endpoint URL")
	cmd.Flags().StringVar(&opts.ModelID, "model-id", "", "Model identifier at provider")
	cmd.Flags().StringVar(&opts.AuthEnv, "auth-env", "", "Environment variable containing API key")
	cmd.Flags().StringVar(&opts.OrgEnv, "org-env", "", "Environment variable containing org/project ID")
	cmd.Flags().StringVar(&opts.PromptFile, "prompt-file", "", "Path to YAML prompt messages for this model")
	cmd.Flags().IntVar(&opts.MaxTokens, "max-tokens", domain.DefaultMaxTokens, "Max tokens for responses")

	return cmd
}

// newModelsRemoveCommand creates the 'models remove' subcommand
func newModelsRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Remove model definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return updateConfig(cmd.Context(), container, func(cfg *domain.Config) error {
				return cfg.RemoveModel(args[0])
			})
		},
	}
}

// modelAddOptions holds options for adding a new model
type modelAddOptions struct {
	Name       string
	Provider   string
	Endpoint   string
	ModelID    string
	AuthEnv    string
	OrgEnv     string
	PromptFile string
	MaxTokens  int
}

// listModels lists all configured models
func listModels(ctx context.Context, out io.Writer, container *app.Container) error {
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROVIDER\tMODEL ID\tENDPOINT\tDEFAULT")
	for _, model := range cfg.Models {
		defaultMarker := ""
		if cfg.Preferences.DefaultModel == model.Name {
			defaultMarker = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			model.Name,
			valueOr(string(model.Provider), "auto"),
			model.ModelID,
			model.Endpoint,
			defaultMarker)
	}
	return tw.Flush()
}

// testModel streams one short reply from the model.
func testModel(ctx context.Context, out io.Writer, container *app.Container, modelName string) error {
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}

	model, exists := cfg.FindModelByName(modelName)
	if !exists {
		return fmt.Errorf("model %s not found", modelName)
	}

	provider, err := container.Factory.ForModel(model)
	if err != nil {
		return fmt.Errorf("failed to create provider for model %s: %w", modelName, err)
	}

	testCtx, cancel := context.WithTimeout(ctx, domain.DefaultModelTestTimeout)
	defer cancel()

	reply, err := probeProvider(testCtx, provider)
	if err != nil {
		return fmt.Errorf("model %s test failed: %w", modelName, err)
	}

	fmt.Fprintf(out, "Model %s (%s) replied: %s\n", modelName, provider.Name(), strings.TrimSpace(reply))
	return nil
}

// probeProvider sends a one-line prompt without tools and collects the text.
func probeProvider(ctx context.Context, provider ports.Provider) (string, error) {
	stream := provider.Stream(ctx, ports.ProviderRequest{
		System: "You are a connectivity check. Answer briefly.",
		History: []domain.Message{{
			Role:    domain.RoleUser,
			Kind:    domain.KindText,
			Content: "Reply with the single word OK.",
		}},
	})
	defer stream.Close()

	var reply strings.Builder
	for {
		ev, ok := stream.Next()
		if !ok {
			return reply.String(), nil
		}
		switch ev := ev.(type) {
		case domain.TextDelta:
			reply.WriteString(ev.Text)
		case domain.ToolCallRequest:
			if err := stream.Resolve(domain.ToolResult{
				CallID:  ev.Call.ID,
				Output:  "connectivity check, nothing runs",
				Outcome: domain.OutcomeRejected,
			}); err != nil {
				return reply.String(), err
			}
		case domain.FatalError:
			return reply.String(), ev.Err
		case domain.TurnEnd:
			if reply.Len() == 0 {
				return "", errors.New("empty reply")
			}
			return reply.String(), nil
		}
	}
}

// addModel adds a new model definition
func addModel(ctx context.Context, container *app.Container, opts modelAddOptions) error {
	if opts.Name == "" {
		return errors.New(ErrModelNameRequired)
	}
	if opts.MaxTokens <= 0 {
		return fmt.Errorf("max-tokens must be positive, got %d", opts.MaxTokens)
	}

	model := domain.ModelDefinition{
		Name:       opts.Name,
		Endpoint:   opts.Endpoint,
		ModelID:    opts.ModelID,
		AuthEnvVar: opts.AuthEnv,
		OrgEnvVar:  opts.OrgEnv,
		MaxTokens:  opts.MaxTokens,
	}
	if opts.Provider != "" {
		kind, err := domain.ParseProviderKind(opts.Provider)
		if err != nil {
			return err
		}
		model.Provider = kind
	}
	if opts.PromptFile != "" {
		prompts, err := helpers.LoadPromptMessagesFromFile(opts.PromptFile)
		if err != nil {
			return err
		}
		model.Prompt = prompts
	}

	return updateConfig(ctx, container, func(cfg *domain.Config) error {
		return cfg.AddModel(model)
	})
}

// updateConfig loads, mutates, validates and saves the configuration.
func updateConfig(ctx context.Context, container *app.Container, mutate func(*domain.Config) error) error {
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}
	if err := mutate(&cfg); err != nil {
		return err
	}
	return helpers.SaveConfigWithValidation(container, cfg)
}

func valueOr(value, def string) string {
	if value == "" {
		return def
	}
	return value
}
