package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/tiktok"
)

// loginCmd implements: tokgrow login
//
// Opens a visible browser, lets the user complete the login (including
// any challenge) by hand, and stores the resulting cookies for the
// configured account.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in interactively and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		// Login is always interactive.
		cfg.Headless = false

		timeout, _ := cmd.Flags().GetDuration("timeout")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

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

		if err := page.Navigate(ctx, cfg.Base+"/login"); err != nil {
			return err
		}

		sampler, err := delays.NewSampler(cfg.Delays)
		if err != nil {
			return err
		}
		client := tiktok.NewClient(page, cfg, sampler)

		fmt.Println("Complete the login in the browser window...")
		for !client.LoggedIn(ctx) {
			if !utils.SleepCtx(ctx, 2*time.Second) {
				return fmt.Errorf("login not completed: %w", ctx.Err())
			}
		}

		blob, err := drv.CookieBlob(ctx)
		if err != nil {
			return fmt.Errorf("exporting cookies: %w", err)
		}
		if err := db.SaveAuth(ctx, cfg.Account, blob); err != nil {
			return err
		}
		utils.Log.Infof("Stored session for account %q", cfg.Account)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().Duration("timeout", 5*time.Minute, "How long to wait for the login to complete")
}
