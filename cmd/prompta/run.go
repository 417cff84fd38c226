package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zoobzio/prompta"
	"github.com/zoobzio/prompta/recipe"
)

func (a *app) runCmd() *cobra.Command {
	var (
		file        string
		input       string
		model       string
		blockType   string
		fresh       bool
		temperature float32
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a recipe once and print the parsed blocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !json.Valid([]byte(input)) {
				return errors.New("--input is not valid JSON")
			}

			r, err := recipe.Load(file)
			if err != nil {
				return err
			}
			client, err := a.client()
			if err != nil {
				return err
			}
			resolver, err := r.Build(client)
			if err != nil {
				return err
			}

			opts := r.Options()
			if fresh {
				opts = append(opts, prompta.WithFreshHistory())
			}
			if model != "" {
				opts = append(opts, prompta.WithModel(model))
			}
			if cmd.Flags().Changed("temperature") {
				// A plain zero reads as unset downstream.
				if temperature == 0 {
					temperature = prompta.TemperatureZero
				}
				opts = append(opts, prompta.WithTemperature(temperature))
			}

			signals := prompta.LogSignals(log.Logger)
			defer signals.Close()

			result, err := resolver.CallRaw(cmd.Context(), json.RawMessage(input), opts...)
			if err != nil {
				return errors.Wrapf(err, "run %s", r.Name)
			}

			if blockType != "" {
				return writeContents(cmd.OutOrStdout(), result.Blocks.OfType(blockType))
			}
			return writeBlocks(cmd.OutOrStdout(), result.Blocks)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&file, "file", "f", "", "Recipe file")
	flags.StringVar(&input, "input", "{}", "Recipe input as JSON")
	flags.StringVar(&model, "model", "", "Override the recipe model")
	flags.Float32Var(&temperature, "temperature", 0, "Override the recipe temperature; 0 requests a deterministic call")
	flags.BoolVar(&fresh, "fresh", false, "Regenerate the example history")
	flags.StringVar(&blockType, "blocks", "", "Print only the contents of blocks of this type")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func writeBlocks(w io.Writer, blocks prompta.Blocks) error {
	if blocks == nil {
		blocks = prompta.Blocks{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(blocks)
}

func writeContents(w io.Writer, blocks prompta.Blocks) error {
	for i, block := range blocks {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, block.Content); err != nil {
			return err
		}
	}
	return nil
}
