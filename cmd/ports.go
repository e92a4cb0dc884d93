package cmd

import (
	"fmt"

	"github.com/andresmejia3/checkpoint/internal/transport"
	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/spf13/cobra"
)

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial devices the badge reader could be attached to",
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := transport.Ports()
		if err != nil {
			utils.Die("Failed to enumerate serial ports", err)
		}
		if len(ports) == 0 {
			fmt.Println("No serial ports found.")
			return
		}
		for _, p := range ports {
			fmt.Println(p)
		}
	},
}

func init() {
	rootCmd.AddCommand(portsCmd)
}
