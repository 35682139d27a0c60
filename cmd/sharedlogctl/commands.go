package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/orbas1/sharedlog/internal/control"
)

// sharedCmd is the `~shared` route root, mirroring `~rep` in
// cmd/cli/replication.go.
var sharedCmd = &cobra.Command{
	Use:     "~shared",
	Short:   "Shared-log node control",
	Aliases: []string{"shared", "sharedlog"},
}

func printResult(format string, data map[string]any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	default:
		for k, v := range data {
			fmt.Printf("%s: %v\n", k, v)
		}
		return nil
	}
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show log length, heads, role and ring/route sizes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		data, err := doAction(ctx, control.Request{Action: "status"})
		if err != nil {
			return err
		}
		return printResult(viper.GetString("output.format"), data)
	},
}

var appendCmd = &cobra.Command{
	Use:   "append [hex-payload]",
	Short: "Append a hex-encoded payload to the log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := hex.DecodeString(args[0]); err != nil {
			return errors.New("payload must be hex-encoded")
		}
		minReplicas, _ := cmd.Flags().GetInt("min-replicas")
		ctx, cancel := context.WithTimeout(cmd.Context(), 12*time.Second)
		defer cancel()
		data, err := doAction(ctx, control.Request{Action: "append", Payload: args[0], MinReplicas: minReplicas})
		if err != nil {
			return err
		}
		return printResult(viper.GetString("output.format"), data)
	},
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List directly connected neighbors and their primary routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		data, err := doAction(ctx, control.Request{Action: "peers"})
		if err != nil {
			return err
		}
		return printResult(viper.GetString("output.format"), data)
	},
}

var ringCmd = &cobra.Command{
	Use:   "ring",
	Short: "Show the current replication ring snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		data, err := doAction(ctx, control.Request{Action: "ring"})
		if err != nil {
			return err
		}
		return printResult(viper.GetString("output.format"), data)
	},
}

var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Show this peer's current role",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Second)
		defer cancel()
		data, err := doAction(ctx, control.Request{Action: "role"})
		if err != nil {
			return err
		}
		return printResult(viper.GetString("output.format"), data)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Transition to Observer and shut the node's engine down",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		_, err := doAction(ctx, control.Request{Action: "stop"})
		return err
	},
}

func init() {
	appendCmd.Flags().Int("min-replicas", 0, "minimum replicas to require (0 = node default)")
	statusCmd.Flags().StringP("format", "f", "table", "output format: table|json")
	_ = viper.BindPFlag("output.format", statusCmd.Flags().Lookup("format"))

	sharedCmd.AddCommand(statusCmd, appendCmd, peersCmd, ringCmd, roleCmd, stopCmd, nodeCmd)
}
