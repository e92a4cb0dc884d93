package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/andresmejia3/checkpoint/internal/store"
	"github.com/andresmejia3/checkpoint/internal/utils"
	"github.com/spf13/cobra"
)

var (
	listDate  string
	listToday bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded attendance",
	RunE: func(cmd *cobra.Command, args []string) error {
		date := listDate
		if listToday {
			date = time.Now().Format(store.DateLayout)
		}
		if date != "" {
			if _, err := time.Parse(store.DateLayout, date); err != nil {
				return fmt.Errorf("invalid --date %q: must be YYYY-MM-DD", date)
			}
		}
		cmd.SilenceUsage = true

		s := openAttendance(cmd.Context())
		records, err := s.List(cmd.Context(), date)
		if err != nil {
			utils.Die("Failed to list attendance", err)
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

func init() {
	listCmd.Flags().StringVarP(&listDate, "date", "d", "", "Only show one day (YYYY-MM-DD)")
	listCmd.Flags().BoolVar(&listToday, "today", false, "Only show today")
	rootCmd.AddCommand(listCmd)
}

func printRecords(out io.Writer, records []store.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No attendance records found.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDATE\tTIME")
	fmt.Fprintln(w, "--\t----\t----\t----")

	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Date, r.Time)
	}
	w.Flush()
}
