// scopectl is the command-line client for the skytrack server.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scopectl",
		Short:         "Control a skytrack telescope server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}

	root.PersistentFlags().String("config", "", "config file (default $HOME/.scopectl.yaml)")
	root.PersistentFlags().String("url", "http://localhost:8080", "skytrack server URL")
	root.PersistentFlags().String("token", "", "bearer token")
	root.PersistentFlags().Bool("json", false, "print raw JSON")
	root.PersistentFlags().Duration("timeout", 5*time.Minute, "request timeout")

	root.AddCommand(
		newCalibrateCmd(),
		newGotoCmd(),
		newBumpCmd(),
		newTargetCmd(),
		newActivitiesCmd(),
		newActivityCmd(),
		newCancelCmd(),
		newHistoryCmd(),
		newLoginCmd(),
		newMonitorCmd(),
	)
	return root
}

// initConfig binds flags, SCOPECTL_* environment variables and an optional
// config file through viper.
func initConfig(cmd *cobra.Command) error {
	for _, name := range []string{"url", "token", "json", "timeout"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}

	viper.SetEnvPrefix("SCOPECTL")
	viper.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		return nil
	}

	viper.SetConfigName(".scopectl")
	viper.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}
	// No config file is fine; flags and env cover everything.
	_ = viper.ReadInConfig()
	return nil
}

func apiClient() *client {
	return newClient(viper.GetString("url"), viper.GetString("token"), viper.GetDuration("timeout"))
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
}
