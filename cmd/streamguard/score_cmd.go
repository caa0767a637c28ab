package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/multierr"

	"github.com/hed1ad/streamguard/pkg/config"
	"github.com/hed1ad/streamguard/pkg/detectors/iforest"
	"github.com/hed1ad/streamguard/pkg/detectors/oif"
	sgio "github.com/hed1ad/streamguard/pkg/io"
	"github.com/hed1ad/streamguard/pkg/io/csv"
	"github.com/hed1ad/streamguard/pkg/io/pcap"
	"github.com/hed1ad/streamguard/pkg/stream"
)

// scoreFlags maps config keys to the score command flags overriding them.
var scoreFlags = map[string]string{
	"model":                   "model",
	"forest.trees":            "trees",
	"forest.max-leaf-samples": "max-leaf-samples",
	"forest.growth":           "growth",
	"forest.subsample-ratio":  "subsample-ratio",
	"forest.window-size":      "window-size",
	"forest.branching-factor": "branching-factor",
	"forest.seed":             "seed",
	"stream.input":            "input",
	"stream.format":           "format",
	"stream.output":           "output",
	"stream.header":           "header",
	"stream.comma":            "comma",
	"stream.columns":          "columns",
	"stream.filter":           "filter",
	"stream.with-features":    "with-features",
	"stream.interface":        "interface",
	"stream.snaplen":          "snaplen",
	"stream.promisc":          "promisc",
	"stream.timeout":          "capture-timeout",
	"metrics.addr":            "metrics-addr",
}

func scoreCmd(rootConfig *rootCmdConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a CSV or pcap stream",
		Long:  `Score every sample of the input before learning it and write index, score and features as CSV`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := config.NewLoader()
			for key, name := range scoreFlags {
				if err := loader.BindFlag(key, cmd.Flags().Lookup(name)); err != nil {
					return err
				}
			}
			cfg, err := loader.Load(rootConfig.configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return score(ctx, cfg, cmd.OutOrStdout())
		},
	}

	d := config.Default()
	flags := cmd.Flags()
	flags.StringP("model", "m", d.Model, "model to run, oif or iforest-asd")
	flags.StringP("input", "i", "", "path to the CSV or pcap file to score (required)")
	flags.StringP("format", "f", d.Stream.Format, "input format, csv or pcap")
	flags.StringP("output", "o", "", "path of the CSV file to write scores to, stdout when empty")
	flags.Bool("header", d.Stream.Header, "whether the CSV input starts with a header row")
	flags.String("comma", d.Stream.Comma, "CSV field delimiter")
	flags.IntSlice("columns", nil, "zero-based CSV columns to use as features, all when empty")
	flags.String("filter", "", "BPF filter applied to pcap input")
	flags.String("interface", "", "network interface to capture from instead of reading --input, needs --format pcap")
	flags.Int32("snaplen", d.Stream.Snaplen, "bytes captured per packet on a live interface")
	flags.Bool("promisc", d.Stream.Promisc, "put the live interface into promiscuous mode")
	flags.Duration("capture-timeout", d.Stream.Timeout, "packet buffer timeout of a live capture")
	flags.Bool("with-features", d.Stream.WithFeatures, "echo the features after the score")
	flags.String("metrics-addr", "", "address to serve prometheus metrics on, disabled when empty")
	addForestFlags(flags, d.Forest)
	return cmd
}

func addForestFlags(flags *pflag.FlagSet, d config.ForestConfig) {
	flags.Int("trees", d.Trees, "number of online isolation trees")
	flags.Int("max-leaf-samples", d.MaxLeafSamples, "samples a leaf holds before it splits")
	flags.String("growth", d.Growth, "split threshold growth, fixed or adaptive")
	flags.Float64("subsample-ratio", d.SubsampleRatio, "probability a tree learns a sample")
	flags.Int("window-size", d.WindowSize, "number of recent samples learned, 0 keeps everything")
	flags.Int("branching-factor", d.BranchingFactor, "children per internal node")
	flags.Int64("seed", d.Seed, "random seed")
}

func openSource(cfg *config.Config) (sgio.Reader, error) {
	s := cfg.Stream
	if s.Input == "" && !s.Live() {
		return nil, errors.New("required input flag was not set")
	}

	switch s.Format {
	case config.FormatPcap:
		var (
			r   *pcap.Reader
			err error
		)
		if s.Live() {
			log.WithFields(logrus.Fields{
				"interface": s.Interface,
				"snaplen":   s.Snaplen,
				"promisc":   s.Promisc,
			}).Info("capturing live traffic")
			r, err = pcap.NewLiveReader(s.Interface, s.Snaplen, s.Promisc, s.Timeout)
		} else {
			r, err = pcap.NewFileReader(s.Input)
		}
		if err != nil {
			return nil, err
		}
		if s.Filter != "" {
			if err := r.SetFilter(s.Filter); err != nil {
				r.Close()
				return nil, err
			}
		}
		return r, nil
	default:
		return csv.NewReader(s.Input,
			csv.WithHeader(s.Header),
			csv.WithComma(cfg.CommaRune()),
			csv.WithColumns(s.Columns...),
		)
	}
}

func openSink(cfg *config.Config, names []string, stdout io.Writer) (sgio.Writer, error) {
	opts := []csv.WriterOption{
		csv.WithFeatureNames(names),
		csv.WithFeatures(cfg.Stream.WithFeatures),
	}
	if cfg.Stream.Output == "" {
		return csv.NewWriterTo(stdout, opts...), nil
	}
	return csv.NewWriter(cfg.Stream.Output, opts...)
}

func serveMetrics(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	return srv
}

func score(ctx context.Context, cfg *config.Config, stdout io.Writer) (err error) {
	model, err := cfg.NewModel(log)
	if err != nil {
		return err
	}

	src, err := openSource(cfg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, src.Close()) }()

	var names []string
	if namer, ok := src.(sgio.FeatureNamer); ok {
		names = namer.FeatureNames()
	}
	sink, err := openSink(cfg, names, stdout)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, sink.Close()) }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := stream.NewMetrics(reg)
	if cfg.Metrics.Addr != "" {
		srv := serveMetrics(cfg.Metrics.Addr, reg)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			err = multierr.Append(err, srv.Shutdown(shutdownCtx))
		}()
	}

	start := time.Now()
	runner := stream.NewRunner(model, sink, stream.WithMetrics(metrics))
	summary, err := runner.RunReader(ctx, src)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"model":     cfg.Model,
		"processed": summary.Processed,
		"rejected":  summary.Rejected,
		"elapsed":   time.Since(start),
	}
	switch m := model.(type) {
	case *oif.Forest:
		stats := m.Stats()
		fields["window"] = stats.Window
		fields["leaves"] = stats.Leaves
		fields["normalization"] = stats.NormalizationFactor
	case *iforest.IsolationForest:
		stats := m.Stats()
		fields["window"] = stats.Window
		fields["refits"] = stats.Refits
	}
	log.WithFields(fields).Info("stream scored")
	return nil
}
