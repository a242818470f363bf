package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ChamsBouzaiene/codepair/internal/config"
	"github.com/ChamsBouzaiene/codepair/internal/project"
	"github.com/ChamsBouzaiene/codepair/internal/providers"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or initialise the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (API keys masked)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		shown.APIKey = mask(shown.APIKey)
		shown.EmbeddingKey = mask(shown.EmbeddingKey)

		data, err := json.MarshalIndent(shown, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}

var (
	configInitForce   bool
	configInitProject bool
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config.json",
	Long: `Writes a default user config.json. With --project it writes
.codepair/project.json in the working directory instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configInitProject {
			return initProjectConfig(cmd)
		}
		mgr, err := configManager()
		if err != nil {
			return err
		}
		if mgr.Exists() && !configInitForce {
			return fmt.Errorf("config already exists in %s (use --force to overwrite)", mgr.Dir())
		}
		if err := mgr.Save(config.Default()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Wrote"), mgr.GetConfigPath())
		return nil
	},
}

var configProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List the supported completion providers",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, p := range providers.Providers() {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config")
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write the per-project config instead")
	configCmd.AddCommand(configShowCmd, configInitCmd, configProvidersCmd)
}

func initProjectConfig(cmd *cobra.Command) error {
	root, err := resolveRoot()
	if err != nil {
		return err
	}
	if project.ConfigExists(root) && !configInitForce {
		return fmt.Errorf("project config already exists in %s (use --force to overwrite)", root)
	}
	cfg := &project.ProjectConfig{DiffFormat: formatFlag, ContextFiles: filesFlag}
	if err := project.SaveConfig(root, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", successStyle.Render("Wrote"),
		filepath.Join(root, project.Dir, project.ConfigFile))
	return nil
}

func mask(key string) string {
	if len(key) <= 8 {
		if key == "" {
			return ""
		}
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
