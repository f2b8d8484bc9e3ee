package cli

import (
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/linkup/internal/version"
)

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the linkup version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			c.printf("%s\n", version.String())
		},
	}
}
