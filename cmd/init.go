package cmd

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/encodeous/nowmesh/state"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init <node-name>",
	Short: "Generate a starter node configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if err := state.NameValidator(name); err != nil {
			return err
		}
		if _, err := os.Stat(configPath); err == nil {
			return fmt.Errorf("%s already exists, refusing to overwrite", configPath)
		}

		cfg := state.LocalCfg{
			Id:      name,
			Address: randomAddr(),
			Radio: state.RadioCfg{
				Driver: "udp",
			},
		}
		cfg.ApplyDefaults()

		out, err := yaml.Marshal(cfg)
		if err != nil {
			return err
		}
		err = os.WriteFile(configPath, out, 0600)
		if err != nil {
			return err
		}
		fmt.Printf("wrote %s for node %s with address %s\n", configPath, name, cfg.Address)
		return nil
	},
}

// randomAddr generates a locally administered unicast hardware address.
func randomAddr() state.HWAddr {
	var a state.HWAddr
	_, _ = rand.Read(a[:])
	a[0] = (a[0] | 0x02) &^ 0x01
	return a
}

func init() {
	rootCmd.AddCommand(initCmd)
}
