package config

import "github.com/spf13/viper"

// SetDefaults registers every configuration key with its default so a
// freshly written config file documents the full surface.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("account", "main")
	v.SetDefault("base_url", "https://www.tiktok.com")
	v.SetDefault("dbpath", "")

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.devtools_url", "")
	v.SetDefault("browser.user_data_dir", "")

	v.SetDefault("budgets.max_follows", 8)
	v.SetDefault("budgets.max_likes", 20)
	v.SetDefault("budgets.max_videos", 7)
	v.SetDefault("budgets.feed_scroll_rounds", 7)
	v.SetDefault("budgets.max_suggested_follows", 3)
	v.SetDefault("budgets.check_interval", 5)

	// Local-time window during which the bot performs no actions.
	v.SetDefault("sleep.start_hour", 22)
	v.SetDefault("sleep.end_hour", 7)

	v.SetDefault("niche.target_tag", "trading")
	v.SetDefault("niche.fallback_tags", []string{
		"forextrading", "daytrading", "cryptotrading",
		"stockmarket", "forex", "crypto",
	})
	v.SetDefault("niche.keywords", []string{
		"trading", "forex", "crypto", "stocks", "bitcoin",
		"ethereum", "daytrading", "investing", "stockmarket",
		"cryptocurrency", "trader", "forextrader",
		"options", "futures", "nifty",
		"market", "profit", "chart", "technical analysis",
		"swing", "scalping", "pips", "candlestick",
		"wallstreet", "nasdaq", "sp500", "dow jones",
		"bullish", "bearish", "breakout", "support resistance",
	})
	v.SetDefault("niche.min_yield", 5)
	// Card-text phrases that mark a mutual connection when no dedicated
	// indicator element is rendered.
	v.SetDefault("niche.mutual_texts", []string{
		"followed by", "mutual connections", "friends with",
		"followed by your friend", "followers you follow", "mutual friend",
	})

	// Seconds.
	v.SetDefault("delays.short_min", 2.0)
	v.SetDefault("delays.short_max", 4.5)
	v.SetDefault("delays.medium_min", 5.0)
	v.SetDefault("delays.medium_max", 9.0)
	v.SetDefault("delays.long_min", 10.0)
	v.SetDefault("delays.long_max", 18.0)
	v.SetDefault("delays.typing_min", 0.5)
	v.SetDefault("delays.typing_max", 1.2)
	v.SetDefault("delays.keystroke_min", 0.04)
	v.SetDefault("delays.keystroke_max", 0.18)

	v.SetDefault("throttle.warn_threshold", 3.0)
	v.SetDefault("throttle.critical_threshold", 6.0)
	v.SetDefault("throttle.warn_pause_min", 30.0)
	v.SetDefault("throttle.warn_pause_max", 60.0)
	v.SetDefault("throttle.critical_pause_min", 120.0)
	v.SetDefault("throttle.critical_pause_max", 300.0)

	v.SetDefault("features.mutuals", true)
	v.SetDefault("features.suggested", true)

	v.SetDefault("stealth.mouse_steps_min", 12)
	v.SetDefault("stealth.mouse_steps_max", 80)
	v.SetDefault("stealth.mouse_step_delay_min", 0.003)
	v.SetDefault("stealth.mouse_step_delay_max", 0.018)
	v.SetDefault("stealth.idle_drift_chance", 0.15)
	v.SetDefault("stealth.micro_scroll_chance", 0.05)

	v.SetDefault("detect.captcha_keywords", []string{
		"verify", "captcha", "security check", "slide to fit",
		"drag the slider", "rotate", "puzzle",
	})

	v.SetDefault("debug.capture_captcha", true)
	v.SetDefault("debug.dir", "debug")

	v.SetDefault("timing.session_interval_min_minutes", 110.0)
	v.SetDefault("timing.session_interval_max_minutes", 140.0)
	v.SetDefault("timing.hashtag_pause_min", 35.0)
	v.SetDefault("timing.hashtag_pause_max", 75.0)
	v.SetDefault("timing.sleep_poll", 60.0)
	v.SetDefault("timing.watch_min", 8.0)
	v.SetDefault("timing.watch_max", 45.0)

	v.SetDefault("selectors.captcha_container", []string{
		`[class*="secsdk-captcha"]`,
		`[class*="captcha_verify"]`,
		`[class*="captcha-verify"]`,
		`#captcha-verify-image`,
	})
	v.SetDefault("selectors.dialog", []string{`div[role="dialog"]`})
	v.SetDefault("selectors.dialog_primary_action", []string{`button`})
	v.SetDefault("selectors.logged_in", []string{
		`[data-e2e="nav-profile"]`,
		`[data-e2e="profile-icon"]`,
		`[data-e2e="upload-icon"]`,
		`[href="/upload"]`,
		`[data-e2e="messages-icon"]`,
	})
	v.SetDefault("selectors.logged_out", []string{`[data-e2e="login-button"]`})
	v.SetDefault("selectors.video_card", []string{`[data-e2e="recommend-list-item-container"]`})
	v.SetDefault("selectors.video_desc", []string{
		`[data-e2e="browse-video-desc"]`,
		`[data-e2e="video-desc"]`,
	})
	v.SetDefault("selectors.video_author", []string{`[data-e2e="video-author-uniqueid"]`})
	v.SetDefault("selectors.like_button", []string{
		`[data-e2e="like-icon"]`,
		`[data-e2e="browse-like-icon"]`,
	})
	v.SetDefault("selectors.like_button_active", []string{
		`[data-e2e="like-icon"][class*="active"]`,
		`[data-e2e="like-icon"][aria-pressed="true"]`,
	})
	v.SetDefault("selectors.profile_link", []string{`a[href*="/@"]`})
	v.SetDefault("selectors.bio_text", []string{`[data-e2e="user-bio"]`})
	v.SetDefault("selectors.user_title", []string{`[data-e2e="user-title"]`})
	v.SetDefault("selectors.follow_button", []string{`[data-e2e="follow-button"]`})
	v.SetDefault("selectors.mutual_indicator", []string{
		`[data-e2e="mutual-links"]`,
		`[class*="mutual"]`,
		`[class*="MutualFollower"]`,
		`a[class*="followedBy"]`,
	})
	v.SetDefault("selectors.suggested_section", []string{
		`[data-e2e="suggest-accounts"]`,
		`[class*="SuggestedAccounts"]`,
	})
	v.SetDefault("selectors.user_card", []string{`[data-e2e="user-card"]`})
	v.SetDefault("selectors.upload_file_input", []string{`input[type="file"]`})
	v.SetDefault("selectors.caption_input", []string{
		`[data-e2e="caption-editor"]`,
		`[contenteditable="true"]`,
	})
	v.SetDefault("selectors.post_button", []string{`[data-e2e="post-button"]`})
	v.SetDefault("selectors.upload_success", []string{`[class*="toast"]`, `[class*="success"]`})
}
