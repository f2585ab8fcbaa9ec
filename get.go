package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/linksync/linkstore"
)

// NewGetCmd creates the get command.
func NewGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a stored link",
		Args:  cobra.ExactArgs(1),
		RunE:  runGetCmd,
	}
}

func runGetCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), getVerboseFlag(cmd))

	id := args[0]
	link, err := linkstore.NewClient(cfg.API, logger).GetLink(cmd.Context(), id)
	if err != nil {
		return describeLookupError(id, err)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	if err := enc.Encode(link); err != nil {
		return fmt.Errorf("encode link: %w", err)
	}
	return nil
}
