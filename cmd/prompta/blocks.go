package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zoobzio/prompta"
)

func (a *app) blocksCmd() *cobra.Command {
	var blockType string

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Parse completion text from stdin into blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return errors.Wrap(err, "read stdin")
			}

			blocks := prompta.ParseBlocks(string(text))
			if blockType != "" {
				return writeContents(cmd.OutOrStdout(), blocks.OfType(blockType))
			}
			return writeBlocks(cmd.OutOrStdout(), blocks)
		},
	}

	cmd.Flags().StringVar(&blockType, "type", "", "Print only the contents of blocks of this type")
	return cmd
}
