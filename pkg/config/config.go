// Package config defines the process-wide configuration surface.
// Everything is loaded once from viper at startup, validated before
// any session starts, and read-only thereafter.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/rvhq/tokgrow/pkg/delays"
	"github.com/rvhq/tokgrow/pkg/detect"
	"github.com/rvhq/tokgrow/pkg/sleepgate"
	"github.com/rvhq/tokgrow/pkg/throttle"
)

// RequiredSelectorKeys is the fixed set of semantic element names the
// automation references. Selectors are only ever looked up through
// these names; validation rejects a config missing any of them.
var RequiredSelectorKeys = []string{
	"captcha_container",
	"dialog",
	"dialog_primary_action",
	"logged_in",
	"logged_out",
	"video_card",
	"video_desc",
	"video_author",
	"like_button",
	"like_button_active",
	"profile_link",
	"bio_text",
	"user_title",
	"follow_button",
	"mutual_indicator",
	"suggested_section",
	"user_card",
	"upload_file_input",
	"caption_input",
	"post_button",
	"upload_success",
}

// Budgets are the per-session safety limits.
type Budgets struct {
	MaxFollows          int
	MaxLikes            int
	MaxVideos           int
	FeedScrollRounds    int
	MaxSuggestedFollows int
	// CheckInterval triggers an extra classifier pass every N actions,
	// independent of the per-action checks.
	CheckInterval int
}

// Niche is the immutable target profile: primary hashtag, ordered
// fallbacks, and the keyword set candidates are matched against.
type Niche struct {
	TargetTag    string
	FallbackTags []string
	Keywords     []string
	MinYield     int
	// MutualTexts are card-text phrases marking a mutual connection,
	// matched where no indicator element is available.
	MutualTexts []string
}

// Features toggle whole session phases, useful for isolating which
// flow triggers platform challenges.
type Features struct {
	Mutuals   bool
	Suggested bool
}

// Stealth tunes the driver's human-motion simulation.
type Stealth struct {
	MouseStepsMin     int
	MouseStepsMax     int
	MouseStepDelayMin time.Duration
	MouseStepDelayMax time.Duration
	IdleDriftChance   float64
	MicroScrollChance float64
}

// Debug controls CAPTCHA diagnostics capture.
type Debug struct {
	CaptureCaptcha bool
	Dir            string
}

// Timing groups the loop-level intervals.
type Timing struct {
	SessionIntervalMin time.Duration
	SessionIntervalMax time.Duration
	HashtagPauseMin    time.Duration
	HashtagPauseMax    time.Duration
	SleepPoll          time.Duration
	WatchMin           time.Duration
	WatchMax           time.Duration
}

type Config struct {
	Account  string
	Base     string
	DBPath   string
	Headless bool

	// DevToolsURL attaches to an already-running browser when set.
	DevToolsURL string
	UserDataDir string

	// CaptchaKeywords flag a dialog as a challenge when its text
	// contains any of them.
	CaptchaKeywords []string

	Budgets   Budgets
	Sleep     sleepgate.Window
	Niche     Niche
	Delays    delays.Ranges
	Throttle  throttle.Config
	Features  Features
	Stealth   Stealth
	Debug     Debug
	Timing    Timing
	Selectors map[string][]string
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetFloat64(key) * float64(time.Second))
}

func durRange(v *viper.Viper, minKey, maxKey string) delays.Range {
	return delays.Range{Min: seconds(v, minKey), Max: seconds(v, maxKey)}
}

// Load decodes the typed configuration from viper and validates it.
func Load(v *viper.Viper) (*Config, error) {
	c := &Config{
		Account:     v.GetString("account"),
		Base:        v.GetString("base_url"),
		DBPath:      v.GetString("dbpath"),
		Headless:    v.GetBool("browser.headless"),
		DevToolsURL: v.GetString("browser.devtools_url"),
		UserDataDir: v.GetString("browser.user_data_dir"),

		CaptchaKeywords: v.GetStringSlice("detect.captcha_keywords"),
		Budgets: Budgets{
			MaxFollows:          v.GetInt("budgets.max_follows"),
			MaxLikes:            v.GetInt("budgets.max_likes"),
			MaxVideos:           v.GetInt("budgets.max_videos"),
			FeedScrollRounds:    v.GetInt("budgets.feed_scroll_rounds"),
			MaxSuggestedFollows: v.GetInt("budgets.max_suggested_follows"),
			CheckInterval:       v.GetInt("budgets.check_interval"),
		},
		Sleep: sleepgate.Window{
			StartHour: v.GetInt("sleep.start_hour"),
			EndHour:   v.GetInt("sleep.end_hour"),
		},
		Niche: Niche{
			TargetTag:    v.GetString("niche.target_tag"),
			FallbackTags: v.GetStringSlice("niche.fallback_tags"),
			Keywords:     v.GetStringSlice("niche.keywords"),
			MinYield:     v.GetInt("niche.min_yield"),
			MutualTexts:  v.GetStringSlice("niche.mutual_texts"),
		},
		Delays: delays.Ranges{
			Short:     durRange(v, "delays.short_min", "delays.short_max"),
			Medium:    durRange(v, "delays.medium_min", "delays.medium_max"),
			Long:      durRange(v, "delays.long_min", "delays.long_max"),
			Typing:    durRange(v, "delays.typing_min", "delays.typing_max"),
			Keystroke: durRange(v, "delays.keystroke_min", "delays.keystroke_max"),
		},
		Throttle: throttle.Config{
			WarnThreshold:     v.GetFloat64("throttle.warn_threshold"),
			CriticalThreshold: v.GetFloat64("throttle.critical_threshold"),
			WarnPause: throttle.PauseRange{
				Min: seconds(v, "throttle.warn_pause_min"),
				Max: seconds(v, "throttle.warn_pause_max"),
			},
			CriticalPause: throttle.PauseRange{
				Min: seconds(v, "throttle.critical_pause_min"),
				Max: seconds(v, "throttle.critical_pause_max"),
			},
		},
		Features: Features{
			Mutuals:   v.GetBool("features.mutuals"),
			Suggested: v.GetBool("features.suggested"),
		},
		Stealth: Stealth{
			MouseStepsMin:     v.GetInt("stealth.mouse_steps_min"),
			MouseStepsMax:     v.GetInt("stealth.mouse_steps_max"),
			MouseStepDelayMin: seconds(v, "stealth.mouse_step_delay_min"),
			MouseStepDelayMax: seconds(v, "stealth.mouse_step_delay_max"),
			IdleDriftChance:   v.GetFloat64("stealth.idle_drift_chance"),
			MicroScrollChance: v.GetFloat64("stealth.micro_scroll_chance"),
		},
		Debug: Debug{
			CaptureCaptcha: v.GetBool("debug.capture_captcha"),
			Dir:            v.GetString("debug.dir"),
		},
		Timing: Timing{
			SessionIntervalMin: time.Duration(v.GetFloat64("timing.session_interval_min_minutes") * float64(time.Minute)),
			SessionIntervalMax: time.Duration(v.GetFloat64("timing.session_interval_max_minutes") * float64(time.Minute)),
			HashtagPauseMin:    seconds(v, "timing.hashtag_pause_min"),
			HashtagPauseMax:    seconds(v, "timing.hashtag_pause_max"),
			SleepPoll:          seconds(v, "timing.sleep_poll"),
			WatchMin:           seconds(v, "timing.watch_min"),
			WatchMax:           seconds(v, "timing.watch_max"),
		},
		Selectors: map[string][]string{},
	}

	for _, key := range RequiredSelectorKeys {
		c.Selectors[key] = v.GetStringSlice("selectors." + key)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate reports configuration errors before any session starts;
// nothing here may be discovered mid-cycle.
func (c *Config) Validate() error {
	if c.Sleep.StartHour < 0 || c.Sleep.StartHour > 23 || c.Sleep.EndHour < 0 || c.Sleep.EndHour > 23 {
		return fmt.Errorf("sleep window hours must be in [0,24): start=%d end=%d", c.Sleep.StartHour, c.Sleep.EndHour)
	}
	if c.Budgets.MaxFollows < 0 || c.Budgets.MaxLikes < 0 || c.Budgets.MaxVideos < 0 {
		return fmt.Errorf("session budgets must not be negative")
	}
	if c.Budgets.MaxSuggestedFollows > c.Budgets.MaxFollows {
		return fmt.Errorf("max_suggested_follows (%d) exceeds max_follows (%d); suggested follows share the global cap",
			c.Budgets.MaxSuggestedFollows, c.Budgets.MaxFollows)
	}
	if c.Budgets.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be positive")
	}
	if c.Niche.TargetTag == "" {
		return fmt.Errorf("niche.target_tag is required")
	}
	if len(c.Niche.Keywords) == 0 {
		return fmt.Errorf("niche.keywords must not be empty")
	}
	if c.Niche.MinYield <= 0 {
		return fmt.Errorf("niche.min_yield must be positive")
	}

	if _, err := delays.NewSampler(c.Delays); err != nil {
		return err
	}

	t := c.Throttle
	if t.WarnThreshold <= 0 || t.CriticalThreshold <= t.WarnThreshold {
		return fmt.Errorf("throttle thresholds must satisfy 0 < warn < critical (warn=%.1f critical=%.1f)",
			t.WarnThreshold, t.CriticalThreshold)
	}
	for name, r := range map[string]throttle.PauseRange{"warn": t.WarnPause, "critical": t.CriticalPause} {
		if r.Min <= 0 || r.Max < r.Min {
			return fmt.Errorf("throttle %s pause range invalid: min=%s max=%s", name, r.Min, r.Max)
		}
	}

	tm := c.Timing
	if tm.SessionIntervalMin <= 0 || tm.SessionIntervalMax < tm.SessionIntervalMin {
		return fmt.Errorf("session interval range invalid: min=%s max=%s", tm.SessionIntervalMin, tm.SessionIntervalMax)
	}
	if tm.HashtagPauseMin < 0 || tm.HashtagPauseMax < tm.HashtagPauseMin {
		return fmt.Errorf("hashtag pause range invalid: min=%s max=%s", tm.HashtagPauseMin, tm.HashtagPauseMax)
	}
	if tm.WatchMin <= 0 || tm.WatchMax < tm.WatchMin {
		return fmt.Errorf("watch duration range invalid: min=%s max=%s", tm.WatchMin, tm.WatchMax)
	}

	for _, key := range RequiredSelectorKeys {
		if len(c.Selectors[key]) == 0 {
			return fmt.Errorf("selectors.%s must list at least one descriptor", key)
		}
	}
	return nil
}

// Selector returns the descriptor list for a semantic element name.
// Only names from RequiredSelectorKeys are ever passed here.
func (c *Config) Selector(name string) []string {
	return c.Selectors[name]
}

// DetectorConfig assembles the classifier's selector sets from the
// validated selector table.
func (c *Config) DetectorConfig() detect.Config {
	return detect.Config{
		CaptchaSelectors:   c.Selector("captcha_container"),
		CaptchaKeywords:    c.CaptchaKeywords,
		DialogSelector:     c.Selector("dialog")[0],
		PrimaryActionSel:   c.Selector("dialog_primary_action")[0],
		LoggedInSelectors:  c.Selector("logged_in"),
		LoggedOutSelectors: c.Selector("logged_out"),
	}
}
