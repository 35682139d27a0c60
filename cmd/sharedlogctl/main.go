// Command sharedlogctl is the operator CLI for a shared-log peer: it
// can run the peer itself (`node`) or talk to a running peer's control
// socket (`status`/`append`/`peers`/`ring`/`role`/`stop`), mirroring
// the shape of cmd/cli/replication.go and cmd/cli/bootstrap_node.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "sharedlogctl",
	Short: "Operate a shared-log peer",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initCliConfig()
		return nil
	},
}

func initCliConfig() {
	viper.SetEnvPrefix("sharedlog")
	viper.AutomaticEnv()

	cfgFile := viper.GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("sharedlog")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/sharedlog")
	}
	_ = viper.ReadInConfig()

	viper.SetDefault("control_addr", "127.0.0.1:7951")
	viper.SetDefault("output.format", "table")
	viper.SetDefault("logging.level", "info")
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to a sharedlog.yaml config file")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	rootCmd.AddCommand(sharedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
