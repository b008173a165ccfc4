package commands

import (
	"net/url"

	"github.com/spf13/cobra"
)

func newStartCmd(newClient clientFactory) *cobra.Command {
	var (
		batchSize   int
		forceDetect bool
	)
	cmd := &cobra.Command{
		Use:   "start BRAND_ID",
		Short: "discover product urls and open a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brandID, err := brandArg(args)
			if err != nil {
				return err
			}
			return post(cmd, newClient, "/start", map[string]any{
				"brandId":     brandID,
				"batchSize":   batchSize,
				"forceDetect": forceDetect,
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "size the discovery limit (0 uses the server default)")
	cmd.Flags().BoolVar(&forceDetect, "force-detect", false, "re-detect the storefront platform")
	return cmd
}

func newDrainCmd(newClient clientFactory) *cobra.Command {
	var (
		brandID     string
		batch       int
		concurrency int
		maxMs       int64
	)
	cmd := &cobra.Command{
		Use:   "drain",
		Short: "process one bounded slice of pending items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, newClient, "/drain", map[string]any{
				"brandId":          brandID,
				"drainBatch":       batch,
				"drainConcurrency": concurrency,
				"drainMaxMs":       maxMs,
			})
		},
	}
	cmd.Flags().StringVar(&brandID, "brand", "", "limit the drain to one brand")
	cmd.Flags().IntVar(&batch, "batch", 0, "items to process (0 uses the server default)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "items in flight")
	cmd.Flags().Int64Var(&maxMs, "max-ms", 0, "wall-clock budget in milliseconds")
	return cmd
}

func newStateCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "state BRAND_ID",
		Short: "show the brand's current run and item counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brandID, err := brandArg(args)
			if err != nil {
				return err
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			raw, err := c.Get(commandContext(cmd), "/state", url.Values{"brandId": {brandID}})
			if err != nil {
				return err
			}
			return printJSON(cmd, raw)
		},
	}
}

// newTransitionCmd builds pause, resume, stop and reset, which share a body.
func newTransitionCmd(newClient clientFactory, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " BRAND_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brandID, err := brandArg(args)
			if err != nil {
				return err
			}
			return post(cmd, newClient, "/"+name, map[string]string{"brandId": brandID})
		},
	}
}

func newFinishCmd(newClient clientFactory) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "finish BRAND_ID",
		Short: "close catalog extraction for a brand permanently",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			brandID, err := brandArg(args)
			if err != nil {
				return err
			}
			return post(cmd, newClient, "/finish", map[string]string{"brandId": brandID, "reason": reason})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why extraction is finished")
	return cmd
}

func newProcessItemCmd(newClient clientFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "process-item ITEM_ID",
		Short: "run one catalog item through the processor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return post(cmd, newClient, "/process-item", map[string]string{"itemId": args[0]})
		},
	}
}
