// Package commands implements the catalogctl command tree.
package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/user/catalog-service/internal/cli/client"
)

const version = "0.1.0"

// NewRootCmd builds the catalogctl command tree. Settings come from flags or
// CATALOGCTL_SERVER, CATALOGCTL_TOKEN and CATALOGCTL_TIMEOUT.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("catalogctl")
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "catalogctl",
		Short:   "Catalog extractor admin CLI",
		Version: version,
		Long: `Operate catalog runs through the catalog extractor admin API:
start and stop runs, drain pending items and inspect run state.`,
		Example: `  # Start a run for a brand
  $ catalogctl start brand-42

  # Drain up to 20 items with 4 in flight
  $ catalogctl drain --brand brand-42 --batch 20 --concurrency 4

  # Show the current run
  $ catalogctl state brand-42`,
		SilenceUsage: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringP("server", "s", "http://localhost:8080", "catalog extractor base URL")
	root.PersistentFlags().String("token", "", "admin bearer token")
	root.PersistentFlags().Duration("timeout", 5*time.Minute, "request timeout")
	for _, name := range []string{"server", "token", "timeout"} {
		_ = v.BindPFlag(name, root.PersistentFlags().Lookup(name))
	}

	newClient := func() (*client.APIClient, error) {
		return client.NewAPIClient(v.GetString("server"), v.GetString("token"), v.GetDuration("timeout"))
	}

	root.AddCommand(
		newStartCmd(newClient),
		newDrainCmd(newClient),
		newStateCmd(newClient),
		newTransitionCmd(newClient, "pause", "pause the brand's processing run"),
		newTransitionCmd(newClient, "resume", "resume a paused run"),
		newTransitionCmd(newClient, "stop", "stop the brand's run for good"),
		newTransitionCmd(newClient, "reset", "clear a blocked run's breaker and resume it"),
		newFinishCmd(newClient),
		newProcessItemCmd(newClient),
	)
	return root
}

// Execute runs catalogctl.
func Execute() error {
	return NewRootCmd().Execute()
}

type clientFactory func() (*client.APIClient, error)

// post sends one admin request and prints the indented JSON answer.
func post(cmd *cobra.Command, newClient clientFactory, endpoint string, body any) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	raw, err := c.Post(commandContext(cmd), endpoint, body)
	if err != nil {
		return err
	}
	return printJSON(cmd, raw)
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	buf.WriteByte('\n')
	_, err := cmd.OutOrStdout().Write(buf.Bytes())
	return err
}

func brandArg(args []string) (string, error) {
	brandID := strings.TrimSpace(args[0])
	if brandID == "" {
		return "", fmt.Errorf("brand id must not be empty")
	}
	return brandID, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
