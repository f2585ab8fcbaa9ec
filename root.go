package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lukemcguire/linksync/config"
	"github.com/lukemcguire/linksync/linkstore"
	"github.com/lukemcguire/linksync/syncer"
)

// NewRootCmd creates the root command for linksync.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "linksync",
		Short: "Mirror the pages behind stored links",
		Long: `linksync keeps a local copy of the web pages behind the links in a
LinkSync store. Each sync fetches a link's page and the same-origin pages it
links to, and writes them under <syncroot>/<id>/<host>/<path>.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: "+config.DefaultConfigPath()+")")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().String("api", "",
		"Link store API URL (overrides the config file and "+config.EnvAPI+")")

	cmd.AddCommand(NewSyncCmd())
	cmd.AddCommand(NewGetCmd())
	cmd.AddCommand(NewListCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config named by --config and applies --api.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("api") {
		if cfg.API, err = cmd.Flags().GetString("api"); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}
	return cfg, nil
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return false
	}
	return verbose
}

// describeLookupError turns link store failures into short CLI messages.
func describeLookupError(id string, err error) error {
	if errors.Is(err, linkstore.ErrLinkNotFound) {
		return fmt.Errorf("no link with id %s", id)
	}
	return err
}

// describeSyncError applies describeLookupError to each link failure in err,
// which may join the failures of several links.
func describeSyncError(err error) error {
	if err == nil {
		return nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		var linkErr *syncer.LinkError
		if errors.As(e, &linkErr) {
			e = describeLookupError(linkErr.ID, e)
		}
		out = append(out, e)
	}
	return errors.Join(out...)
}
