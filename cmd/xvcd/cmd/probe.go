package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceXVC/pkg/client"
)

var probeTckNs uint32

var probeCmd = &cobra.Command{
	Use:   "probe [address]",
	Short: "Query a running XVC server",
	Long: `Probe connects to an XVC server, reports its protocol version and
shift capability, and optionally negotiates a TCK period.

Examples:
  xvcd probe localhost:2542
  xvcd probe 192.168.1.50:2542 --tck 100`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)

	probeCmd.Flags().Uint32Var(&probeTckNs, "tck", 0,
		"also request this TCK period in nanoseconds")
}

func runProbe(cmd *cobra.Command, args []string) error {
	addr := "localhost:2542"
	if len(args) > 0 {
		addr = args[0]
	}

	c, err := client.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	info, err := c.GetInfo()
	if err != nil {
		return err
	}
	fmt.Printf("Server:     %s\n", addr)
	fmt.Printf("Protocol:   xvcServer_v%s\n", info.Version)
	fmt.Printf("Max shift:  %d bits (%d bytes per vector)\n", info.MaxBits, (info.MaxBits+7)/8)

	if probeTckNs > 0 {
		actual, err := c.SetTck(probeTckNs)
		if err != nil {
			return err
		}
		fmt.Printf("TCK period: requested %d ns, got %d ns\n", probeTckNs, actual)
	}
	return nil
}
