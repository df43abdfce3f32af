package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-trades-must-flow/internal/cli"
	"github.com/Veraticus/the-trades-must-flow/internal/config"
	"github.com/Veraticus/the-trades-must-flow/internal/preset"
	"github.com/Veraticus/the-trades-must-flow/internal/sniffer"
)

func presetsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List broker presets",
		Run: func(_ *cobra.Command, _ []string) {
			rows := make([]preset.Match, 0)
			for _, p := range preset.Default().All() {
				rows = append(rows, preset.Match{Preset: p})
			}
			fmt.Println(cli.RenderPresets(rows, 0))
		},
	}

	cmd.AddCommand(presetsDetectCmd())

	return cmd
}

func presetsDetectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Score every preset against a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fileType, _ := cmd.Flags().GetString("type")

			importCfg, err := config.LoadImportConfig()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			ft, err := sniffer.DetectFileType(filepath.Base(args[0]), fileType, data)
			if err != nil {
				return err
			}
			sample, err := sniffer.Sniff(data, ft, importCfg.SampleSize)
			if err != nil {
				return err
			}

			fmt.Println(cli.FormatInfo(fmt.Sprintf("%s file, headers: %v", ft, sample.Headers)))
			fmt.Println(cli.RenderPresets(preset.Default().Ranked(sample.Headers, sample.Rows), importCfg.PresetThreshold))
			return nil
		},
	}

	cmd.Flags().String("type", "", "file type override (csv, tsv, xlsx, xls, xml, ofx)")

	return cmd
}
