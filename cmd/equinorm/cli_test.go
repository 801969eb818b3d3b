package main

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfluke/equinorm/nn"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, _, err := executeWithLog(t, args...)
	return out, err
}

// executeWithLog also returns what was logged.
func executeWithLog(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewCLI()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rs: 2x1,1x3\nbatch: 2\naffine: false\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	want := DefaultConfig()
	want.Rs = "2x1,1x3"
	want.Batch = 2
	want.Affine = false
	assert.Equal(t, want, cfg)

	require.NoError(t, os.WriteFile(path, []byte("size: 0\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("batch: [\n"), 0644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNormCommand(t *testing.T) {
	save := filepath.Join(t.TempDir(), "gn.safetensors")
	out, err := execute(t, "norm", "--rs", "2x1,1x3", "--batch", "2", "--size", "3", "--workers", "2", "--save", save)
	require.NoError(t, err)

	assert.Contains(t, out, "GroupNorm(Rs=2x1,1x3, eps=1e-05, affine=true)")
	assert.Contains(t, out, "BLOCK")
	assert.Contains(t, out, "RMS OUT")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Len(t, lines, 4)

	g, err := nn.DefaultGroupNorm[float32](nn.Rs{{Mul: 2, Dim: 1}, {Mul: 1, Dim: 3}})
	require.NoError(t, err)
	require.NoError(t, g.LoadSafetensors(save))
}

func TestNormCommandConfigAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rs: 1x1\nbatch: 1\nsize: 2\n"), 0644))

	out, err := execute(t, "norm", "--config", path, "--no-affine", "--eps", "0.001")
	require.NoError(t, err)
	assert.Contains(t, out, "GroupNorm(Rs=1x1, eps=0.001, affine=false)")

	_, err = execute(t, "norm", "--rs", "1x")
	assert.ErrorIs(t, err, nn.ErrInvalidRs)

	_, err = execute(t, "norm", "--batch", "0")
	assert.Error(t, err)
}

func TestSphereCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.png")
	out, err := execute(t, "sphere", "--coeff", "0, 0.5,1,0", "--n", "4", "--size", "32", "-o", path)
	require.NoError(t, err)
	assert.Equal(t, path, strings.TrimSpace(out))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	_, err = execute(t, "sphere", "--coeff", "1,x", "-o", path)
	assert.Error(t, err)

	_, logged, err := executeWithLog(t, "sphere", "--coeff", "1,0,0,0,1,1", "--n", "2", "--size", "16", "-o", path)
	require.NoError(t, err)
	assert.Contains(t, logged, "ignoring coefficients")
	assert.Contains(t, logged, "used=4")
}
