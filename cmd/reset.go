package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every attendance record",
	Long:  "Clears the configured attendance store. The gallery is never touched.",
	Run: func(cmd *cobra.Command, args []string) {
		if !resetYes {
			reader := bufio.NewReader(os.Stdin)
			prompt := fmt.Sprintf("⚠️  Are you sure you want to delete all attendance in %s?", Cfg.Store.DSN)
			if !utils.Confirm(reader, os.Stdout, prompt) {
				fmt.Println("Aborted.")
				return
			}
		}

		s := openAttendance(cmd.Context())
		fmt.Println("🗑️  Clearing attendance...")
		if err := s.Reset(cmd.Context()); err != nil {
			utils.Die("Failed to reset attendance", err)
		}
		fmt.Println("✨ Attendance Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}
