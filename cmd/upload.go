package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/storage"
	"github.com/rvhq/tokgrow/pkg/tiktok"
)

// uploadCmd implements: tokgrow upload <video>
//
// One-shot post outside the session loop. Uses the stored session but
// skips the feed and discovery phases entirely.
var uploadCmd = &cobra.Command{
	Use:   "upload <video>",
	Short: "Upload a single video right now",
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

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, lock, err := openDatabase(cfg)
		if err != nil {
			return err
		}
		defer lock.Unlock()
		defer db.Close()

		drv := newDriver(cfg)
		page, err := drv.Open(ctx)
		if err != nil {
			return err
		}
		defer drv.Close()

		blob, err := db.LoadAuth(ctx, cfg.Account)
		if errors.Is(err, storage.ErrNoAuthSession) {
			return fmt.Errorf("no stored session for account %q; run 'tokgrow login' first", cfg.Account)
		}
		if err != nil {
			return err
		}
		if err := drv.RestoreCookies(ctx, blob); err != nil {
			return err
		}
		if err := page.Navigate(ctx, cfg.Base); err != nil {
			return err
		}

		sampler, err := delays.NewSampler(cfg.Delays)
		if err != nil {
			return err
		}
		client := tiktok.NewClient(page, cfg, sampler)
		if !client.LoggedIn(ctx) {
			return fmt.Errorf("stored session is no longer valid; run 'tokgrow login' again")
		}

		if err := client.Upload(ctx, path, caption); err != nil {
			return err
		}
		if err := db.AppendActivity(ctx, "uploads", "posted", path); err != nil {
			utils.Log.Debugf("Could not append activity: %v", err)
		}
		fmt.Println("Upload confirmed.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().String("caption", "", "Caption to post with the video")
}
