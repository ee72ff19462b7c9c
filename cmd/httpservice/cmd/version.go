package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-httpservice/internal/api"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (admin API v%d)\n", api.ServiceName, api.Version, api.APIVersion)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
