package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/detectors/iforest"
	"github.com/hed1ad/streamguard/pkg/detectors/oif"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streamguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
forest:
  trees: 10
  max-leaf-samples: 8
  growth: fixed
  window-size: 0
stream:
  input: data.csv
  comma: ";"
  columns: [2, 0]
metrics:
  addr: ":9100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Forest.Trees)
	assert.Equal(t, 8, cfg.Forest.MaxLeafSamples)
	assert.Equal(t, "fixed", cfg.Forest.Growth)
	assert.Equal(t, 0, cfg.Forest.WindowSize)
	// untouched keys keep their defaults
	assert.Equal(t, oif.DefaultBranchingFactor, cfg.Forest.BranchingFactor)
	assert.Equal(t, int64(oif.DefaultSeed), cfg.Forest.Seed)

	assert.Equal(t, "data.csv", cfg.Stream.Input)
	assert.Equal(t, FormatCSV, cfg.Stream.Format)
	assert.Equal(t, ';', cfg.CommaRune())
	assert.Equal(t, []int{2, 0}, cfg.Stream.Columns)
	assert.Equal(t, ":9100", cfg.Metrics.Addr)
	assert.Equal(t, ModelOIF, cfg.Model)
	assert.Equal(t, 0.2, cfg.IForest.DriftThreshold)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "forest:\n  trees: 10\n")
	t.Setenv("STREAMGUARD_FOREST_TREES", "7")
	t.Setenv("STREAMGUARD_FOREST_MAX_LEAF_SAMPLES", "5")
	t.Setenv("STREAMGUARD_STREAM_FORMAT", "pcap")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Forest.Trees)
	assert.Equal(t, 5, cfg.Forest.MaxLeafSamples)
	assert.Equal(t, FormatPcap, cfg.Stream.Format)
}

func TestLoadLiveCapture(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Stream.Live())
	assert.Equal(t, int32(65535), cfg.Stream.Snaplen)
	assert.True(t, cfg.Stream.Promisc)
	assert.Equal(t, time.Second, cfg.Stream.Timeout)

	path := writeConfig(t, `
stream:
  format: pcap
  interface: eth0
  snaplen: 1600
  promisc: false
  timeout: 250ms
`)
	t.Setenv("STREAMGUARD_STREAM_TIMEOUT", "2s")

	cfg, err = Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Stream.Live())
	assert.Equal(t, "eth0", cfg.Stream.Interface)
	assert.Equal(t, int32(1600), cfg.Stream.Snaplen)
	assert.False(t, cfg.Stream.Promisc)
	assert.Equal(t, 2*time.Second, cfg.Stream.Timeout)
}

func TestLoaderBindFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("trees", 0, "")
	flags.String("input", "", "")
	require.NoError(t, flags.Parse([]string{"--trees", "3"}))

	l := NewLoader()
	require.NoError(t, l.BindFlag("forest.trees", flags.Lookup("trees")))
	require.NoError(t, l.BindFlag("stream.input", flags.Lookup("input")))
	assert.Error(t, l.BindFlag("stream.output", flags.Lookup("missing")))

	cfg, err := l.Load(writeConfig(t, "forest:\n  trees: 10\nstream:\n  input: file.csv\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Forest.Trees)
	// unset flags do not override the file
	assert.Equal(t, "file.csv", cfg.Stream.Input)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed yaml", "forest: [\n"},
		{"unknown model", "model: knn\n"},
		{"unknown format", "stream:\n  format: parquet\n"},
		{"long delimiter", "stream:\n  comma: ';;'\n"},
		{"negative column", "stream:\n  columns: [-1]\n"},
		{"live csv", "stream:\n  interface: eth0\n"},
		{"zero snaplen", "stream:\n  format: pcap\n  snaplen: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestForestOptions(t *testing.T) {
	cfg := Default()
	cfg.Forest.Trees = 4
	cfg.Forest.WindowSize = 2

	f, err := oif.New(cfg.ForestOptions()...)
	require.NoError(t, err)
	for _, row := range [][]float64{{1, 1}, {2, 2}, {3, 3}} {
		require.NoError(t, f.FitPartial(row))
	}

	stats := f.Stats()
	assert.Equal(t, 4, stats.Trees)
	assert.Equal(t, 2, stats.Window)

	cfg.Forest.Growth = "exponential"
	_, err = oif.New(cfg.ForestOptions()...)
	assert.Error(t, err)
}

func TestNewModel(t *testing.T) {
	tests := []struct {
		name  string
		model string
		want  any
	}{
		{"online isolation forest", ModelOIF, &oif.Forest{}},
		{"reservoir isolation forest", ModelIForestASD, &iforest.IsolationForest{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Model = tt.model
			m, err := cfg.NewModel(logrus.New())
			require.NoError(t, err)
			assert.IsType(t, tt.want, m)
		})
	}

	t.Run("invalid iforest options", func(t *testing.T) {
		cfg := Default()
		cfg.Model = ModelIForestASD
		cfg.IForest.Contamination = 2
		_, err := cfg.NewModel(logrus.New())
		assert.ErrorIs(t, err, detectors.ErrInvalidConfiguration)
	})
}

func TestDump(t *testing.T) {
	cfg := Default()
	cfg.Stream.Columns = []int{1, 3}
	cfg.Metrics.Addr = ":2112"
	cfg.Stream.Timeout = 500 * time.Millisecond

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))
	assert.Contains(t, buf.String(), "max-leaf-samples: 32")
	assert.Contains(t, buf.String(), "timeout: 500ms")

	var decoded Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, cfg, decoded)
}
