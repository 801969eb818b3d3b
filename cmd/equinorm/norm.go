package main

import (
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/openfluke/equinorm/gpu"
	"github.com/openfluke/equinorm/nn"
)

type normOptions struct {
	GPU   bool
	Save  string
	DType string
}

func newNormCmd() *cobra.Command {
	var (
		configPath string
		opts       normOptions
		flagCfg    = DefaultConfig()
		noAffine   bool
	)

	cmd := &cobra.Command{
		Use:   "norm",
		Short: "Normalize a random field and report per-block statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := DefaultConfig()
			if configPath != "" {
				var err error
				if cfg, err = LoadConfig(configPath); err != nil {
					return err
				}
			}

			flags := cmd.Flags()
			if flags.Changed("rs") {
				cfg.Rs = flagCfg.Rs
			}
			if flags.Changed("batch") {
				cfg.Batch = flagCfg.Batch
			}
			if flags.Changed("size") {
				cfg.Size = flagCfg.Size
			}
			if flags.Changed("eps") {
				cfg.Epsilon = flagCfg.Epsilon
			}
			if flags.Changed("workers") {
				cfg.Workers = flagCfg.Workers
			}
			if flags.Changed("seed") {
				cfg.Seed = flagCfg.Seed
			}
			if flags.Changed("no-affine") {
				cfg.Affine = !noAffine
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runNorm(cmd.OutOrStdout(), cfg, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "YAML run configuration")
	flags.StringVar(&flagCfg.Rs, "rs", flagCfg.Rs, "Representation list as MULxDIM,...")
	flags.IntVar(&flagCfg.Batch, "batch", flagCfg.Batch, "Batch size")
	flags.IntVar(&flagCfg.Size, "size", flagCfg.Size, "Edge length of the cubic grid")
	flags.Float64Var(&flagCfg.Epsilon, "eps", flagCfg.Epsilon, "Epsilon added to the norm statistic")
	flags.IntVar(&flagCfg.Workers, "workers", flagCfg.Workers, "Blocks normalized concurrently")
	flags.Int64Var(&flagCfg.Seed, "seed", flagCfg.Seed, "Random seed of the input field")
	flags.BoolVar(&noAffine, "no-affine", false, "Disable the learned scale and bias")
	flags.BoolVar(&opts.GPU, "gpu", false, "Also run on the GPU and compare with the CPU result")
	flags.StringVar(&opts.Save, "save", "", "Write the layer parameters to a safetensors file")
	flags.StringVar(&opts.DType, "dtype", "F32", "Safetensors dtype: F64, F32 or F16")
	return cmd
}

func runNorm(w io.Writer, cfg Config, opts normOptions) error {
	rs, err := nn.ParseRs(cfg.Rs)
	if err != nil {
		return err
	}
	layer, err := nn.NewGroupNorm[float32](rs, cfg.Epsilon, cfg.Affine)
	if err != nil {
		return err
	}
	layer.Workers = cfg.Workers

	input := randomField(rs, cfg)
	slog.Debug("normalizing", "layer", layer.String(), "shape", input.Shape)

	output, err := layer.Forward(input)
	if err != nil {
		return err
	}

	before, err := nn.DescribeBlocks(input, layer.Rs)
	if err != nil {
		return err
	}
	after, err := nn.DescribeBlocks(output, layer.Rs)
	if err != nil {
		return err
	}

	fmt.Fprintln(w, layer.String())
	writeStats(w, before, after)

	if opts.GPU {
		gpuOut, err := nn.GroupNormForwardGPU(layer, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "gpu max abs diff: %g\n", gpu.MaxAbsDiff(output.Data, gpuOut.Data))
	}

	if opts.Save != "" {
		if err := layer.SaveSafetensors(opts.Save, opts.DType); err != nil {
			return err
		}
		slog.Info("saved parameters", "path", opts.Save, "dtype", opts.DType)
	}
	return nil
}

// randomField fills [batch, width, size, size, size] with uniform values in [0, 1).
func randomField(rs nn.Rs, cfg Config) *nn.Tensor[float32] {
	rng := rand.New(rand.NewSource(cfg.Seed))
	t := nn.NewTensor[float32](cfg.Batch, rs.Width(), cfg.Size, cfg.Size, cfg.Size)
	for i := range t.Data {
		t.Data[i] = rng.Float32()
	}
	return t
}

func writeStats(w io.Writer, before, after []nn.BlockStat) {
	var data [][]string
	for i, b := range before {
		a := after[i]
		data = append(data, []string{
			strconv.Itoa(b.Block),
			fmt.Sprintf("%dx%d", b.Irrep.Mul, b.Irrep.Dim),
			formatStat(b.Mean),
			formatStat(b.RMS),
			formatStat(a.Mean),
			formatStat(a.RMS),
		})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"BLOCK", "REPR", "MEAN IN", "RMS IN", "MEAN OUT", "RMS OUT"})
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	table.AppendBulk(data)
	table.Render()
}

func formatStat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
