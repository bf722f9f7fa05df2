package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/encodeous/nowmesh/core"
	"github.com/encodeous/nowmesh/impl"
	"github.com/encodeous/nowmesh/radio"
	"github.com/encodeous/nowmesh/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a mesh node",
	Long: `Runs a mesh node on the configured radio and attaches a line-based chat:
a plain line is broadcast to the whole mesh, and a line of the form
"@aa:bb:cc:dd:ee:ff message" is sent to that node only.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readNodeConfig(configPath)
		if err != nil {
			return err
		}

		level := slog.LevelInfo
		if ok, _ := cmd.Flags().GetBool("verbose"); ok {
			level = slog.LevelDebug
		}

		r, err := buildRadio(cfg, level)
		if err != nil {
			return err
		}

		hooks := state.Hooks{
			Receive: func(payload []byte, targetedAtSelf bool, originator state.HWAddr) {
				if targetedAtSelf {
					fmt.Printf("[%s -> you] %s\n", originator, payload)
				} else {
					fmt.Printf("[%s] %s\n", originator, payload)
				}
			},
		}

		ready := make(chan *state.State, 1)
		go chatLoop(ready)

		return core.Start(*cfg, r, level, hooks, func(s *state.State) {
			ready <- s
		})
	},
}

func readNodeConfig(path string) (*state.LocalCfg, error) {
	var cfg state.LocalCfg
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &cfg)
	if err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()
	err = state.NodeConfigValidator(&cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func buildRadio(cfg *state.LocalCfg, level slog.Level) (state.Radio, error) {
	log := slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:        level,
		CustomPrefix: cfg.Id + "/radio",
	}))
	switch cfg.Radio.Driver {
	case "udp":
		return radio.NewUdp(cfg.Radio.Udp, cfg.Address, log)
	case "serial":
		return radio.NewSerial(cfg.Radio.Serial, log)
	case "mqtt":
		return radio.NewMqtt(cfg.Radio.Mqtt, cfg.Address, log), nil
	default:
		return nil, fmt.Errorf("unknown radio driver %q", cfg.Radio.Driver)
	}
}

// chatLoop turns stdin lines into mesh sends once the node is up.
func chatLoop(ready <-chan *state.State) {
	s := <-ready
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var target state.HWAddr
		targeted := false
		if rest, ok := strings.CutPrefix(line, "@"); ok {
			addr, msg, found := strings.Cut(rest, " ")
			parsed, err := state.ParseHWAddr(addr)
			if err != nil || !found {
				fmt.Println("usage: @aa:bb:cc:dd:ee:ff message")
				continue
			}
			target = parsed
			line = msg
			targeted = true
		}
		payload := []byte(line)
		s.Dispatch(func(s *state.State) error {
			m := impl.Get[*impl.Mesh](s)
			var err error
			if targeted {
				err = m.SendTo(s, payload, target)
			} else {
				err = m.Send(s, payload)
			}
			if err != nil {
				s.Log.Warn("send rejected", "err", err)
			}
			return nil
		})
	}
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolVarP(&state.DBG_log_frames, "lframes", "f", false, "Log every frame through the pipeline")
	runCmd.Flags().BoolVarP(&state.DBG_log_scan, "lscan", "s", false, "Log discovery cycles")
}
