package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath = "node.yaml"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nowmesh",
	Short: "NowMesh flooding mesh CLI",
	Long: `NowMesh is a store-and-forward flooding mesh over a broadcast-capable radio link.
Nodes relay messages opportunistically without exchanging routing tables; routes are
inferred from traffic that has already been observed.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "node configuration file")
}
