// Package app wires the submerge commands.
package app

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/John-Robertt/submerge-go/internal/config"
)

// NewRootCmd builds a fresh command tree; each call has its own flags.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "submerge",
		Short: "Subscription aggregator for xray clients",
		Long: `submerge fetches proxy subscriptions, merges or renames their entries and
writes one base64 encoded artifact (a full xray config or a link list).

Every flag can also be set through the environment variable the scheduled
jobs already use (SUB_LINKS, SUB_URL, NEW_NAMES, NAME_PREFIX, ...).`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			return setupLogging(v, cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().String(config.KeyLogLevel, "", "log level: debug, info, warn, error (default info)")

	root.AddCommand(
		newAggregateCmd(),
		newRenameCmd(),
		newConvertCmd(),
		newDecodeCmd(),
		newServeCmd(),
		newHealthcheckCmd(),
	)
	return root
}

// newViper merges the command's flags with the environment. Flags set on
// the command line win over the environment.
func newViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	if err := config.BindEnv(v); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	if err := v.BindPFlags(cmd.InheritedFlags()); err != nil {
		return nil, err
	}
	return v, nil
}

func setupLogging(v *viper.Viper, w io.Writer) error {
	lvl, err := config.LogLevel(v)
	if err != nil {
		return err
	}
	logrus.SetOutput(w)
	logrus.SetLevel(lvl)
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return nil
}
