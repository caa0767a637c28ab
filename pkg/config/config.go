// Package config loads streamguard settings from a YAML file, environment
// variables and command line flags.
package config

import (
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/streamguard/pkg/detectors"
	"github.com/hed1ad/streamguard/pkg/detectors/iforest"
	"github.com/hed1ad/streamguard/pkg/detectors/oif"
)

// EnvPrefix is prepended to every environment variable, so forest.trees is
// read from STREAMGUARD_FOREST_TREES.
const EnvPrefix = "STREAMGUARD"

// Models the score command can run.
const (
	ModelOIF        = "oif"
	ModelIForestASD = "iforest-asd"
)

// Input formats understood by the score command.
const (
	FormatCSV  = "csv"
	FormatPcap = "pcap"
)

// ForestConfig mirrors the Online Isolation Forest options.
type ForestConfig struct {
	Trees           int     `mapstructure:"trees" yaml:"trees"`
	MaxLeafSamples  int     `mapstructure:"max-leaf-samples" yaml:"max-leaf-samples"`
	Growth          string  `mapstructure:"growth" yaml:"growth"`
	SubsampleRatio  float64 `mapstructure:"subsample-ratio" yaml:"subsample-ratio"`
	WindowSize      int     `mapstructure:"window-size" yaml:"window-size"`
	BranchingFactor int     `mapstructure:"branching-factor" yaml:"branching-factor"`
	Split           string  `mapstructure:"split" yaml:"split"`
	Seed            int64   `mapstructure:"seed" yaml:"seed"`
}

// IForestConfig mirrors the IForestASD options.
type IForestConfig struct {
	Trees          int     `mapstructure:"trees" yaml:"trees"`
	SampleSize     int     `mapstructure:"sample-size" yaml:"sample-size"`
	WindowSize     int     `mapstructure:"window-size" yaml:"window-size"`
	Contamination  float64 `mapstructure:"contamination" yaml:"contamination"`
	DriftThreshold float64 `mapstructure:"drift-threshold" yaml:"drift-threshold"`
	Seed           int64   `mapstructure:"seed" yaml:"seed"`
}

// StreamConfig describes where samples come from and where scores go.
type StreamConfig struct {
	Input        string `mapstructure:"input" yaml:"input"`
	Format       string `mapstructure:"format" yaml:"format"`
	Output       string `mapstructure:"output" yaml:"output"`
	Header       bool   `mapstructure:"header" yaml:"header"`
	Comma        string `mapstructure:"comma" yaml:"comma"`
	Columns      []int  `mapstructure:"columns" yaml:"columns,omitempty"`
	Filter       string `mapstructure:"filter" yaml:"filter,omitempty"`
	WithFeatures bool   `mapstructure:"with-features" yaml:"with-features"`

	// Interface switches pcap input from Input to a live capture.
	Interface string        `mapstructure:"interface" yaml:"interface,omitempty"`
	Snaplen   int32         `mapstructure:"snaplen" yaml:"snaplen"`
	Promisc   bool          `mapstructure:"promisc" yaml:"promisc"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Live reports whether packets are captured from a network interface.
func (s StreamConfig) Live() bool {
	return s.Format == FormatPcap && s.Interface != ""
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`
}

// Config is the complete streamguard configuration.
type Config struct {
	Model   string        `mapstructure:"model" yaml:"model"`
	Forest  ForestConfig  `mapstructure:"forest" yaml:"forest"`
	IForest IForestConfig `mapstructure:"iforest" yaml:"iforest"`
	Stream  StreamConfig  `mapstructure:"stream" yaml:"stream"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Model: ModelOIF,
		Forest: ForestConfig{
			Trees:           oif.DefaultNumTrees,
			MaxLeafSamples:  oif.DefaultMaxLeafSamples,
			Growth:          string(oif.DefaultGrowthCriterion),
			SubsampleRatio:  oif.DefaultSubsampleRatio,
			WindowSize:      oif.DefaultWindowSize,
			BranchingFactor: oif.DefaultBranchingFactor,
			Split:           string(oif.DefaultSplitKind),
			Seed:            oif.DefaultSeed,
		},
		IForest: IForestConfig{
			Trees:          100,
			SampleSize:     256,
			WindowSize:     2048,
			Contamination:  0.1,
			DriftThreshold: 0.2,
			Seed:           oif.DefaultSeed,
		},
		Stream: StreamConfig{
			Format:       FormatCSV,
			Header:       true,
			Comma:        ",",
			WithFeatures: true,
			Snaplen:      65535,
			Promisc:      true,
			Timeout:      time.Second,
		},
	}
}

// defaults flattens Default into viper keys. Every key must have a default,
// otherwise AutomaticEnv does not see it during Unmarshal.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"model":                   d.Model,
		"forest.trees":            d.Forest.Trees,
		"forest.max-leaf-samples": d.Forest.MaxLeafSamples,
		"forest.growth":           d.Forest.Growth,
		"forest.subsample-ratio":  d.Forest.SubsampleRatio,
		"forest.window-size":      d.Forest.WindowSize,
		"forest.branching-factor": d.Forest.BranchingFactor,
		"forest.split":            d.Forest.Split,
		"forest.seed":             d.Forest.Seed,
		"iforest.trees":           d.IForest.Trees,
		"iforest.sample-size":     d.IForest.SampleSize,
		"iforest.window-size":     d.IForest.WindowSize,
		"iforest.contamination":   d.IForest.Contamination,
		"iforest.drift-threshold": d.IForest.DriftThreshold,
		"iforest.seed":            d.IForest.Seed,
		"stream.input":            d.Stream.Input,
		"stream.format":           d.Stream.Format,
		"stream.output":           d.Stream.Output,
		"stream.header":           d.Stream.Header,
		"stream.comma":            d.Stream.Comma,
		"stream.columns":          d.Stream.Columns,
		"stream.filter":           d.Stream.Filter,
		"stream.with-features":    d.Stream.WithFeatures,
		"stream.interface":        d.Stream.Interface,
		"stream.snaplen":          d.Stream.Snaplen,
		"stream.promisc":          d.Stream.Promisc,
		"stream.timeout":          d.Stream.Timeout,
		"metrics.addr":            d.Metrics.Addr,
	}
}

// Loader resolves a Config from defaults, a file, the environment and bound
// flags, in increasing order of precedence.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a Loader with the defaults and environment binding set up.
func NewLoader() *Loader {
	v := viper.New()
	for key, value := range defaults() {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlag lets flag override key when the flag was set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return errors.Errorf("no flag for key %s", key)
	}
	return errors.Wrapf(l.v.BindPFlag(key, flag), "bind flag %s", flag.Name)
}

// Load reads path, when not empty, and returns the validated configuration.
func (l *Loader) Load(path string) (*Config, error) {
	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is a shorthand for NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Validate checks the settings the forest constructor does not see.
func (c *Config) Validate() error {
	switch c.Model {
	case ModelOIF, ModelIForestASD:
	default:
		return errors.Errorf("unknown model %q", c.Model)
	}
	switch c.Stream.Format {
	case FormatCSV, FormatPcap:
	default:
		return errors.Errorf("unknown input format %q", c.Stream.Format)
	}
	if utf8.RuneCountInString(c.Stream.Comma) != 1 {
		return errors.Errorf("csv delimiter must be a single character, got %q", c.Stream.Comma)
	}
	if c.Stream.Interface != "" && c.Stream.Format != FormatPcap {
		return errors.Errorf("live capture on %s needs the pcap format", c.Stream.Interface)
	}
	if c.Stream.Snaplen <= 0 {
		return errors.Errorf("snaplen must be positive, got %d", c.Stream.Snaplen)
	}
	for _, col := range c.Stream.Columns {
		if col < 0 {
			return errors.Errorf("negative column index %d", col)
		}
	}
	return nil
}

// CommaRune returns the CSV delimiter.
func (c *Config) CommaRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Stream.Comma)
	return r
}

// ForestOptions converts the forest section to constructor options.
func (c *Config) ForestOptions() []oif.Option {
	f := c.Forest
	return []oif.Option{
		oif.WithTrees(f.Trees),
		oif.WithMaxLeafSamples(f.MaxLeafSamples),
		oif.WithGrowthCriterion(oif.GrowthCriterion(f.Growth)),
		oif.WithSubsampleRatio(f.SubsampleRatio),
		oif.WithWindowSize(f.WindowSize),
		oif.WithBranchingFactor(f.BranchingFactor),
		oif.WithSplitKind(oif.SplitKind(f.Split)),
		oif.WithSeed(f.Seed),
	}
}

// IForestOptions converts the iforest section to constructor options.
func (c *Config) IForestOptions() []iforest.Option {
	f := c.IForest
	return []iforest.Option{
		iforest.WithTrees(f.Trees),
		iforest.WithSampleSize(f.SampleSize),
		iforest.WithWindowSize(f.WindowSize),
		iforest.WithContamination(f.Contamination),
		iforest.WithDriftThreshold(f.DriftThreshold),
		iforest.WithSeed(f.Seed),
	}
}

// NewModel builds the configured model.
func (c *Config) NewModel(logger logrus.FieldLogger) (detectors.Model, error) {
	switch c.Model {
	case ModelIForestASD:
		return iforest.New(append(c.IForestOptions(), iforest.WithLogger(logger))...)
	default:
		return oif.New(append(c.ForestOptions(), oif.WithLogger(logger))...)
	}
}

// Dump writes the configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return enc.Close()
}
