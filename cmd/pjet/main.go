// The pjet command runs the remote debug bridge against a simulated debug
// module, along with a few tools for inspecting what clients did.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dcrodman/pjet/internal/core"
)

var ConfigFlag string

func main() {
	rootCmd := &cobra.Command{
		Use:          "pjet",
		Short:        "Remote debug bridge for a simulated RISC-V debug module",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&ConfigFlag, "config", "c", "", "Path to the directory containing config.yaml")

	serveCmd.Flags().Int("port", 0, "Port on which to listen for debug clients (0 picks a free port)")
	_ = viper.BindPFlag("bridge.port", serveCmd.Flags().Lookup("port"))

	sniffCmd.Flags().StringVarP(&CaptureFileFlag, "file", "f", "", "pcap file containing bridge traffic")
	sniffCmd.Flags().Uint16VarP(&CapturePortFlag, "port", "p", 0, "Port the bridge was listening on")
	_ = sniffCmd.MarkFlagRequired("file")
	_ = sniffCmd.MarkFlagRequired("port")

	traceCmd.AddCommand(traceSessionsCmd)
	traceCmd.AddCommand(traceShowCmd)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sniffCmd)
	rootCmd.AddCommand(traceCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*core.Config, error) {
	cfg, err := core.LoadConfig(viper.GetViper(), ConfigFlag)
	if err != nil {
		return nil, err
	}
	if ConfigFlag != "" {
		fmt.Println("using configuration directory:", ConfigFlag)
	}
	return cfg, nil
}
