package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"citybuilder/internal/render"
)

func newRenderCmd(a *app) *cobra.Command {
	var (
		output string
		labels bool
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Draw the skyline to a PNG file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			houses, err := a.loadHouses(cmd.Context())
			if err != nil {
				return err
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			opts := render.DefaultOptions()
			opts.Labels = labels
			if err := render.EncodePNG(f, houses, opts); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d houses)\n", output, len(houses))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "city.png", "output file")
	cmd.Flags().BoolVar(&labels, "labels", true, "draw house names under the skyline")
	return cmd
}
