package cmd

import (
	"os"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tidelineproject/tideline/internal/tidectl"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tidectl",
		Short: "tidectl controls the Tideline deadline stream scheduler.",
		Long: `tidectl controls the Tideline deadline stream scheduler.

Persistent config can be saved in a config file so it doesn't have to be
specified every command, for example:

redisAddrs:
  - localhost:6379
redisPassword: ""

The location of this file can be passed in using --config argument or picked
up from $HOME/.tidectl.yaml.`,
	}

	cmd.PersistentFlags().String("config", "", "config file (default is $HOME/.tidectl.yaml)")
	cmd.PersistentFlags().StringSlice("redisAddrs", []string{"localhost:6379"}, "address(es) of the scheduler store")
	cmd.PersistentFlags().String("redisPassword", "", "password of the scheduler store")
	cmd.PersistentFlags().Int("redisDb", 0, "database of the scheduler store")

	cmd.AddCommand(
		cancelCmd(),
		jobCmd(),
		scanCmd(),
		settingsCmd(),
		slaCmd(),
		statsCmd(),
		submitCmd(),
		versionCmd(),
	)

	return cmd
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

// initParams merges config file, environment and flag values into the app
// parameters. Flags win over the environment, the environment over the file.
func initParams(cmd *cobra.Command, params *tidectl.Params) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return errors.WithStack(err)
	}

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return errors.WithStack(err)
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return errors.WithStack(err)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".tidectl")
	}

	viper.SetEnvPrefix("TIDECTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, missing := err.(viper.ConfigFileNotFoundError); !missing || configFile != "" {
			return errors.WithStack(err)
		}
	}

	params.Redis.Addrs = viper.GetStringSlice("redisAddrs")
	params.Redis.Password = viper.GetString("redisPassword")
	params.Redis.DB = viper.GetInt("redisDb")
	return nil
}
