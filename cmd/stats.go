package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// statsCmd implements: tokgrow stats
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print lifetime counters and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, lock, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		counters, err := db.GetCounters(cmd.Context(), cfg.Account)
		if err != nil {
			return err
		}
		fmt.Printf("Account %q: %d follows, %d likes, %d videos watched\n\n",
			cfg.Account, counters.Follows, counters.Likes, counters.Videos)

		limit, _ := cmd.Flags().GetInt("limit")
		activity, err := db.RecentActivity(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(activity) == 0 {
			fmt.Println("No activity recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "WHEN\tPHASE\tKIND\tDETAIL\t")
		for _, a := range activity {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				a.OccurredAt.Local().Format("2006-01-02 15:04:05"), a.Phase, a.Kind, a.Detail)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Int("limit", 20, "How many recent activity rows to show")
}
