package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled video uploads",
}

// scheduleAddCmd implements: tokgrow schedule add <video>
var scheduleAddCmd = &cobra.Command{
	Use:   "add <video>",
	Short: "Queue a video for upload at a target time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("video file not found: %s", path)
		}

		caption, _ := cmd.Flags().GetString("caption")
		at, _ := cmd.Flags().GetString("at")
		target := time.Now()
		if at != "" {
			target, err = time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("could not parse --at %q, want RFC3339 (e.g. 2026-09-02T18:30:00Z): %w", at, err)
			}
		}

		db, lock, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		id, err := db.AddUpload(cmd.Context(), path, caption, target)
		if err != nil {
			return err
		}
		fmt.Printf("Scheduled upload %d: %s at %s\n", id, path, target.Format(time.RFC3339))
		return nil
	},
}

// scheduleListCmd implements: tokgrow schedule list
var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled uploads",
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

		uploads, err := db.ListUploads(cmd.Context())
		if err != nil {
			return err
		}
		if len(uploads) == 0 {
			fmt.Println("No scheduled uploads.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTARGET\tPATH\tCAPTION\t")
		for _, u := range uploads {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t\n",
				u.ID, u.Status, u.TargetTime.Local().Format("2006-01-02 15:04"), u.Path, u.Caption)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.AddCommand(scheduleAddCmd)
	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleAddCmd.Flags().String("caption", "", "Caption to post with the video")
	scheduleAddCmd.Flags().String("at", "", "Target time (RFC3339); defaults to now")
}
