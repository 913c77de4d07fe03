// sqlreadbench measures how many point lookups per second a store sustains when
// a fixed workload is spread over several OS processes, each running several
// execution units with their own connection.
//
// It builds a fresh fixture table, runs every unit's lookups, and prints
// per-process, per-unit and global throughput. Any failure aborts the run with
// a non-zero exit code and no statistics.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/blagojts/viper"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/timescale/sqlreadbench/internal/utils"
	"github.com/timescale/sqlreadbench/pkg/orchestrator"
	"github.com/timescale/sqlreadbench/pkg/query"
	"github.com/timescale/sqlreadbench/pkg/report"
)

var version = "dev"

type rootOptions struct {
	cfgFile  string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		logFailure(err)
		os.Exit(1)
	}
}

func logFailure(err error) {
	var e *query.Error
	if !errors.As(err, &e) {
		logrus.Error(err)
		return
	}
	fields := logrus.Fields{"kind": e.Kind.String()}
	if e.ProcessIndex != query.NoIndex {
		fields["process"] = e.ProcessIndex
	}
	if e.UnitIndex != query.NoIndex {
		fields["unit"] = e.UnitIndex
	}
	logrus.WithFields(fields).Error(err)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "sqlreadbench",
		Short:         "Measure concurrent point lookup throughput of SQLite and PostgreSQL",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return utils.ConfigureLogging(os.Stderr, opts.logLevel)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig(cmd, v, opts)
			if err != nil {
				return err
			}
			return runBenchmark(cmd.Context(), cmd.OutOrStdout(), config, opts)
		},
	}

	var config query.BenchmarkConfig
	config.AddToFlagSet(cmd.Flags())
	cmd.Flags().StringVar(&opts.cfgFile, "config", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(newWorkerCmd(), newVersionCmd())
	return cmd
}

func loadConfig(cmd *cobra.Command, v *viper.Viper, opts *rootOptions) (query.BenchmarkConfig, error) {
	var config query.BenchmarkConfig
	if err := utils.SetupConfigFile(v, opts.cfgFile, cmd.Flags()); err != nil {
		return config, query.NewError(query.ConfigError, err)
	}
	if used := v.ConfigFileUsed(); used != "" {
		logrus.WithField("file", used).Info("using config file")
	}
	if err := v.Unmarshal(&config); err != nil {
		return config, query.NewError(query.ConfigError, errors.Wrap(err, "unable to decode config"))
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

func runBenchmark(ctx context.Context, w io.Writer, config query.BenchmarkConfig, opts *rootOptions) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	var spawner orchestrator.Spawner
	if config.Processes > 1 {
		s, err := orchestrator.NewExecSpawner("--log-level", opts.logLevel)
		if err != nil {
			return query.NewError(query.SpawnError, err)
		}
		spawner = s
	}

	host := report.HostInfo()
	o := orchestrator.New(config, spawner, orchestrator.NewPinner(), log)
	o.Report = func(out orchestrator.Outcome) error {
		return writeReport(w, host, out, log)
	}
	_, err := o.Run(ctx)
	return err
}

// writeReport renders the text report but only prints it once every output
// file has been written, so a failed run never shows statistics.
func writeReport(w io.Writer, host report.Host, out orchestrator.Outcome, log *logrus.Entry) error {
	var text bytes.Buffer
	if err := report.Write(&text, host, out); err != nil {
		return errors.Wrap(err, "render report")
	}
	if f := out.Config.HDRLatenciesFile; f != "" {
		log.WithField("file", f).Info("saving High Dynamic Range (HDR) histogram of response latencies")
		if err := report.WriteLatencies(f, out.Latencies); err != nil {
			return err
		}
	}
	if f := out.Config.ResultsFile; f != "" {
		log.WithField("file", f).Info("saving results file")
		if err := report.SaveResults(f, host, out); err != nil {
			return err
		}
	}
	if f := out.Config.MemProfile; f != "" {
		if err := utils.WriteHeapProfile(f); err != nil {
			return err
		}
	}
	_, err := text.WriteTo(w)
	return errors.Wrap(err, "write report")
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    orchestrator.WorkerCommand,
		Short:  "Run the execution units of one process (started by sqlreadbench itself)",
		Args:   cobra.NoArgs,
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logrus.NewEntry(logrus.StandardLogger())
			return orchestrator.ServeWorker(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), orchestrator.NewPinner(), log)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "sqlreadbench", version)
		},
	}
}
