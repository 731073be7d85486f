package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	homedir "github.com/mitchellh/go-homedir"

	"github.com/rvhq/tokgrow/internal/utils"
	"github.com/rvhq/tokgrow/pkg/config"
)

var cfgFile string

const (
	LOGO = `	 _        _
	| |_ ___ | | ____ _ _ __ _____      __
	| __/ _ \| |/ / _` + "`" + ` | '__/ _ \ \ /\ / /
	| || (_) |   < (_| | | | (_) \ V  V /
	 \__\___/|_|\_\__, |_|  \___/ \_/\_/
	              |___/
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tokgrow",
	Short: "A niche-focused account growth automator.",
	Long: LOGO + `tokgrow grows a niche account with human-paced sessions: it posts
scheduled videos, browses the feed, and follows niche-matching
accounts with mutual connections, backing off whenever the platform
pushes back.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tokgrow.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default is $HOME/.config/tokgrow/tokgrow.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".tokgrow")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	config.SetDefaults(viper.GetViper())

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.tokgrow.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	if dbpath, _ := rootCmd.PersistentFlags().GetString("dbpath"); dbpath != "" {
		viper.Set("dbpath", dbpath)
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

// loadConfig decodes and validates the full configuration; commands
// call it after cobra has run initConfig.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
