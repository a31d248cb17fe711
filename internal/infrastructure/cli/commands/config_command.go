package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/kshai/internal/app"
	configapp "github.com/doeshing/kshai/internal/application/config"
	"github.com/doeshing/kshai/internal/domain"
	"github.com/doeshing/kshai/internal/infrastructure/cli/helpers"
	configinfra "github.com/doeshing/kshai/internal/infrastructure/config"
)

const envKeyEditor = "EDITOR"

// NewConfigCommand groups the subcommands that read and edit ~/.kshai/config.yaml.
// Every write goes through validation and leaves a timestamped backup.
func NewConfigCommand(container *app.Container) *cobra.Command {
	show := func(cmd *cobra.Command, args []string) error {
		return showConfiguration(cmd.Context(), cmd.OutOrStdout(), container)
	}
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit KSHAI configuration",
		Args:  cobra.NoArgs,
		RunE:  show,
	}

	configCmd.AddCommand(
		&cobra.Command{Use: "show", Short: "Show full configuration", Args: cobra.NoArgs, RunE: show},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file location",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				loader, err := helpers.GetConfigLoader(container)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), loader.Path())
				return nil
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Get a configuration value (e.g. preferences.default_model)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return getConfigurationValue(cmd.Context(), cmd.OutOrStdout(), container, args[0])
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value (value accepts YAML syntax)",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return setConfigurationValue(cmd.Context(), container, args[0], strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "edit",
			Short: "Edit configuration in $EDITOR",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return editConfigurationInEditor(cmd.Context(), container)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the configuration file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cmd.Context(), container)
				if err != nil {
					return err
				}
				if err := configapp.Validate(cfg); err != nil {
					return fmt.Errorf("configuration validation failed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Reset configuration to defaults (the old file is backed up)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return resetConfigurationToDefaults(cmd.OutOrStdout(), container)
			},
		},
		&cobra.Command{
			Use:   "diff",
			Short: "Show differences from the default configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return showConfigurationDiff(cmd.Context(), cmd.OutOrStdout(), container)
			},
		},
	)
	return configCmd
}

func loadConfig(ctx context.Context, container *app.Container) (domain.Config, error) {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return domain.Config{}, err
	}
	cfg, err := loader.Load(ctx)
	if err != nil {
		return domain.Config{}, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func showConfiguration(ctx context.Context, out io.Writer, container *app.Container) error {
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal configuration: %w", err)
	}

	fmt.Fprint(out, string(data))
	return nil
}

// getConfigurationValue prints one value addressed by a dotted key as YAML.
func getConfigurationValue(ctx context.Context, out io.Writer, container *app.Container, key string) error {
	path, err := helpers.ParseKeyPath(key)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}
	tree, err := helpers.ConfigToMap(cfg)
	if err != nil {
		return err
	}

	value, found := path.Lookup(tree)
	if !found {
		return fmt.Errorf("key %s not found in configuration", path)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	fmt.Fprint(out, string(data))
	return nil
}

// setConfigurationValue updates one value and saves only if the result still validates.
func setConfigurationValue(ctx context.Context, container *app.Container, key string, value string) error {
	path, err := helpers.ParseKeyPath(key)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}
	tree, err := helpers.ConfigToMap(cfg)
	if err != nil {
		return err
	}

	path.Set(tree, helpers.ParseScalar(value))
	updated, err := helpers.ConfigFromMap(tree)
	if err != nil {
		return err
	}
	return helpers.SaveConfigWithValidation(container, updated)
}

func editConfigurationInEditor(ctx context.Context, container *app.Container) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}

	editor := os.Getenv(envKeyEditor)
	if editor == "" {
		editor = DefaultEditorCommand
	}
	if _, err := loader.Backup(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	cmd := exec.CommandContext(ctx, editor, loader.Path())
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to run editor %s: %w", editor, err)
	}

	cfg, err := loader.Load(ctx)
	if err != nil {
		return fmt.Errorf("edited configuration does not parse: %w", err)
	}
	if err := configapp.Validate(cfg); err != nil {
		return fmt.Errorf("edited configuration is invalid (restore a .bak file or run 'kshai config reset'): %w", err)
	}
	return nil
}

func resetConfigurationToDefaults(out io.Writer, container *app.Container) error {
	loader, err := helpers.GetConfigLoader(container)
	if err != nil {
		return err
	}

	if backup, err := loader.Backup(); err == nil {
		fmt.Fprintf(out, "Previous configuration saved to %s\n", backup)
	}

	if _, err := loader.Reset(); err != nil {
		return fmt.Errorf("failed to reset configuration: %w", err)
	}

	fmt.Fprintf(out, "Configuration reset at %s\n", loader.Path())
	return nil
}

// showConfigurationDiff prints a go-cmp diff of the default config (-) against the loaded one (+).
func showConfigurationDiff(ctx context.Context, out io.Writer, container *app.Container) error {
	current, err := loadConfig(ctx, container)
	if err != nil {
		return err
	}

	diff := cmp.Diff(configinfra.Default(), current)
	if diff == "" {
		fmt.Fprintln(out, MsgNoDifferencesFromDefault)
		return nil
	}

	fmt.Fprintln(out, diff)
	return nil
}
