package app

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/John-Robertt/submerge-go/internal/config"
	"github.com/John-Robertt/submerge-go/internal/output"
	"github.com/John-Robertt/submerge-go/internal/pipeline"
)

func addRunFlags(f *pflag.FlagSet, defaultOutput string, defaultTimeout time.Duration) {
	f.StringP(config.KeyOutput, "o", defaultOutput, "artifact file to write")
	f.String(config.KeyFormat, "", "output format: config (xray) or links (default depends on the source shape)")
	f.Duration(config.KeyTimeout, defaultTimeout, "timeout of each upstream request")
	f.Int(config.KeyRetries, 0, "extra attempts for transient upstream failures")
	f.Int(config.KeyConcurrency, pipeline.DefaultConcurrency, "upstream requests in flight")
}

func newAggregateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Merge several subscriptions into one artifact",
		Long: `Fetch every subscription, keep the first outbound of each configuration and
write them with unique names into one xray configuration.

A source may override the default shape with a prefix: links+https://...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadAggregate(v)
			if err != nil {
				return err
			}
			res, err := pipeline.Aggregate(cmd.Context(), cfg.Sources, cfg.Pipeline)
			if err != nil {
				return err
			}
			return writeArtifact(cmd, cfg.Output, res)
		},
	}
	f := cmd.Flags()
	f.StringSlice(config.KeySubs, nil, "subscription URLs (comma separated or repeated)")
	f.String(config.KeyShape, "", "default source shape: config, proxies, links (default config)")
	addRunFlags(f, config.DefaultAggregateOutput, 10*time.Second)
	return cmd
}

func newRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename the entries of one link subscription",
		Long: `Fetch one link subscription and give its entries the names from --names,
one per line, reusing them cyclically when there are more entries than names.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadRename(v)
			if err != nil {
				return err
			}
			res, err := pipeline.Rename(cmd.Context(), cfg.Source, cfg.Names, cfg.Pipeline)
			if err != nil {
				return err
			}
			return writeArtifact(cmd, cfg.Output, res)
		},
	}
	f := cmd.Flags()
	f.String(config.KeySub, "", "subscription URL")
	f.String(config.KeyNames, "", `new names, one per line (a literal \n also separates)`)
	f.String(config.KeyShape, "", "source shape: config, proxies, links (default links)")
	addRunFlags(f, config.DefaultRenameOutput, 15*time.Second)
	return cmd
}

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a proxy list into named share links",
		Long: `Fetch one subscription of structured proxy objects and write them as share
links named <prefix>1, <prefix>2, ... in input order.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			cfg, err := config.LoadConvert(v)
			if err != nil {
				return err
			}
			res, err := pipeline.Convert(cmd.Context(), cfg.Source, cfg.Prefix, cfg.Pipeline)
			if err != nil {
				return err
			}
			return writeArtifact(cmd, cfg.Output, res)
		},
	}
	f := cmd.Flags()
	f.String(config.KeySub, "", "subscription URL")
	f.String(config.KeyPrefix, "", "name prefix")
	f.String(config.KeyShape, "", "source shape: config, proxies, links (default proxies)")
	addRunFlags(f, config.DefaultConvertOutput, 15*time.Second)
	return cmd
}

func writeArtifact(cmd *cobra.Command, path string, res *pipeline.Result) error {
	if err := output.Write(cmd.Context(), path, res.Encoded); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"path":    path,
		"entries": len(res.Entries) - res.Report.Skipped,
		"sources": res.Report.Sources,
		"failed":  len(res.Report.Failures),
	}).Info("artifact written")
	return nil
}
