package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/freeeve/starlane/pkg/starlane"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the opening board of a map as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			topo, err := loadMap(cmd)
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			return writeBoard(cmd, starlane.NewInitialBoard(topo), out)
		},
	}
	cmd.Flags().StringP("out", "o", "", "output file (default stdout)")
	return cmd
}

func readBoard(path string) (*starlane.Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read board: %w", err)
	}
	b := starlane.NewBoard()
	if err := json.Unmarshal(data, b); err != nil {
		return nil, err
	}
	return b, nil
}

// writeBoard writes b as indented JSON to path, or to stdout when path is empty.
func writeBoard(cmd *cobra.Command, b *starlane.Board, path string) error {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	data = append(data, '\n')
	if path == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write board: %w", err)
	}
	return nil
}
