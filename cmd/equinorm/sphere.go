package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfluke/equinorm/sphere"
)

func newSphereCmd() *cobra.Command {
	var (
		coeff string
		n     int
		size  int
		out   string
	)

	cmd := &cobra.Command{
		Use:   "sphere",
		Short: "Render a spherical-harmonic signal to a PNG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := parseFloats(coeff)
			if err != nil {
				return err
			}
			if used := sphere.Used(values, sphere.LinearBasis); used < len(values) {
				slog.Warn("ignoring coefficients beyond the supported degrees", "given", len(values), "used", used)
			}
			img, err := sphere.Render(sphere.HarmonicSignal(values, sphere.LinearBasis), n, size)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := sphere.WritePNG(f, img); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			slog.Info("wrote sphere", "path", out, "coefficients", len(values))
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&coeff, "coeff", "1", "Harmonic coefficients, comma separated, degree 0 first")
	cmd.Flags().IntVar(&n, "n", 20, "Mesh resolution")
	cmd.Flags().IntVar(&size, "size", 512, "Image edge in pixels")
	cmd.Flags().StringVarP(&out, "out", "o", "sphere.png", "Output PNG path")
	return cmd
}

func parseFloats(s string) ([]float64, error) {
	var values []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("coefficient %q: %w", field, err)
		}
		values = append(values, v)
	}
	return values, nil
}
