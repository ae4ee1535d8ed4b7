package cli

import (
	"os"

	"github.com/spf13/cobra"

	"options-signals/internal/config"
	apperrors "options-signals/internal/errors"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(newConfigShowCmd(app))
	cmd.AddCommand(newConfigPathCmd(app))
	cmd.AddCommand(newConfigValidateCmd(app))
	return cmd
}

func newConfigShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			cfg := *app.Config
			if cfg.Cache.RedisPassword != "" {
				cfg.Cache.RedisPassword = "********"
			}
			if output.IsJSON() {
				return output.JSON(cfg)
			}

			output.Bold("Configuration (%s)", config.ConfigPath(app.ConfigDir))
			output.Println()
			output.Printf("  Store:        %s\n", cfg.Store.Path)
			output.Printf("  Cache:        %s (ttl %s)\n", cfg.Cache.Backend, cfg.Cache.TTL)
			if cfg.Cache.Backend == "redis" {
				output.Printf("  Redis:        %s db %d\n", cfg.Cache.RedisAddr, cfg.Cache.RedisDB)
			}
			output.Printf("  Workers:      %d\n", cfg.Pipeline.Workers)
			output.Printf("  Timeframes:   %v\n", cfg.Pipeline.Timeframes)
			output.Printf("  Timezone:     %s (%d holidays)\n", cfg.Calendar.Timezone, len(cfg.Calendar.Holidays))
			output.Printf("  Rate / Div:   %s / %s\n", FormatIV(cfg.Pricing.Rate), FormatIV(cfg.Pricing.Dividend))
			output.Printf("  Default IV:   %s\n", FormatIV(cfg.Pricing.DefaultIV))
			output.Printf("  Log level:    %s\n", cfg.Logging.Level)
			return nil
		},
	}
}

func newConfigPathCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file path",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.ConfigPath(app.ConfigDir)
			if output.IsJSON() {
				_, err := os.Stat(path)
				return output.JSON(map[string]interface{}{
					"path":   path,
					"exists": err == nil,
				})
			}
			output.Println(path)
			return nil
		},
	}
}

func newConfigValidateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:         "validate",
		Short:       "Validate the config file",
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			_, err := config.Load(app.ConfigDir)
			if output.IsJSON() {
				resp := map[string]interface{}{"valid": err == nil}
				if err != nil {
					resp["error"] = err.Error()
				}
				if jerr := output.JSON(resp); jerr != nil {
					return jerr
				}
				return err
			}
			if err != nil {
				if apperrors.Is(err, apperrors.ErrConfigInvalid) {
					output.Error("Invalid configuration: %v", err)
				}
				return err
			}
			output.Success("Configuration is valid")
			return nil
		},
	}
}
