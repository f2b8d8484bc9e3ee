package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/app"
	"github.com/MrSnakeDoc/linkup/internal/httpserver/deps"
)

func (c *cli) serverCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "server local|remote",
		Short:     "Run a linkup server in the foreground",
		Long:      "Run a linkup server in the foreground. `linkup start` runs the local one in the background; the remote one is the shared server every session registers with.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{deps.ModeLocal, deps.ModeRemote},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := c.loadConfig()
			log := c.newLogger(cfg)
			defer func() { _ = log.Sync() }()

			a, err := app.New(cmd.Context(), cfg, log, args[0])
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
}
