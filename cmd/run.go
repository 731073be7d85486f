package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/browser/roddrv"
	"github.com/rvhq/tokgrow/pkg/config"
	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/detect"
	"github.com/rvhq/tokgrow/pkg/scheduler"
	"github.com/rvhq/tokgrow/pkg/session"
	"github.com/rvhq/tokgrow/pkg/storage"
	"github.com/rvhq/tokgrow/pkg/throttle"
	"github.com/rvhq/tokgrow/pkg/tiktok"
)

// runCmd implements: tokgrow run
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the session loop until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		once, _ := cmd.Flags().GetBool("once")

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

		if blob, err := db.LoadAuth(ctx, cfg.Account); err == nil {
			if err := drv.RestoreCookies(ctx, blob); err != nil {
				utils.Log.Warnf("Could not restore the stored session: %v", err)
			}
		} else if errors.Is(err, storage.ErrNoAuthSession) {
			utils.Log.Warnf("No stored session for account %q; run 'tokgrow login' first if the browser profile is not logged in", cfg.Account)
		} else {
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
		capture := &detect.Capture{Dir: cfg.Debug.Dir, Enabled: cfg.Debug.CaptureCaptcha}
		ctrl := &session.Controller{
			Cfg:      cfg,
			Client:   client,
			Source:   client,
			Detector: detect.NewClassifier(cfg.DetectorConfig(), capture),
			Throttle: throttle.New(cfg.Throttle, nil),
			Store:    db,
			Sampler:  sampler,
		}

		if once {
			_, err = ctrl.Run(ctx)
		} else {
			loop := &scheduler.Loop{Cfg: cfg, Runner: ctrl, Sampler: sampler}
			err = loop.Run(ctx)
		}

		// Cancellation raced the browser down; save the session with a
		// fresh context so a clean shutdown keeps the login alive.
		if blob, cerr := drv.CookieBlob(context.Background()); cerr == nil {
			if serr := db.SaveAuth(context.Background(), cfg.Account, blob); serr != nil {
				utils.Log.Warnf("Could not save the auth session: %v", serr)
			}
		}

		if errors.Is(err, context.Canceled) {
			utils.Log.Info("Interrupted, shutting down")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("once", false, "Run a single session and exit")
}

func newDriver(cfg *config.Config) *roddrv.Driver {
	return roddrv.New(roddrv.Options{
		Headless:       cfg.Headless,
		UserDataDir:    cfg.UserDataDir,
		DevToolsURL:    cfg.DevToolsURL,
		MouseStepsMin:  cfg.Stealth.MouseStepsMin,
		MouseStepsMax:  cfg.Stealth.MouseStepsMax,
		MouseStepDelay: [2]time.Duration{cfg.Stealth.MouseStepDelayMin, cfg.Stealth.MouseStepDelayMax},
		KeystrokeDelay: [2]time.Duration{cfg.Delays.Keystroke.Min, cfg.Delays.Keystroke.Max},
	})
}

// openDatabase resolves the path, takes the cross-process lock, and
// opens the store.
func openDatabase(cfg *config.Config) (*storage.DB, *utils.DBLock, error) {
	path, err := utils.GetAbsDBPath(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}

	lock, err := utils.NewDBLock(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(path)
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	return db, lock, nil
}
