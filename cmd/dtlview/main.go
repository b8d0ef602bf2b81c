package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	flagConfig   string
	flagManifest string
	flagStore    string
	flagDB       string
	flagFormat   string
	flagLogLevel string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// stdout receives command results. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// logger is configured by the root command before any subcommand runs.
var logger = zerolog.Nop()

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dtlview",
	Short: "Inspect data-trace-lineage manifests and their snapshot data",
	Long: "dtlview maps source positions to the snapshots of a traced program and reads\n" +
		"snapshot schema, length and rows from the columnar arrays backing them.\n" +
		"All line and column numbers are 0-based.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		l, err := newLogger(os.Stderr, flagFormat, flagLogLevel)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
	// No Run: prints help by default.
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "config file (yaml, toml or json)")
	pf.StringVar(&flagManifest, "manifest", "", "manifest URL or path")
	pf.StringVar(&flagStore, "store", "", "array store base URL or directory")
	pf.StringVar(&flagDB, "db", "", "scratch database path (default: in memory)")
	pf.StringVar(&flagFormat, "format", "json", "output format: json|text")
	pf.StringVar(&flagLogLevel, "log-level", "warn", "log level: debug|info|warn|error")

	rootCmd.AddCommand(snapshotAtCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(arraysCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.AddCommand(lengthCmd)
	rootCmd.AddCommand(dataCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig layers the config file and DTLVIEW_* environment variables
// under the persistent flags. Flags given on the command line win.
func loadConfig(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix("DTLVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	flags := cmd.Flags()
	if err := v.BindPFlags(flags); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	if flagConfig != "" {
		v.SetConfigFile(flagConfig)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", flagConfig, err)
		}
	}

	for name, dst := range map[string]*string{
		"manifest":  &flagManifest,
		"store":     &flagStore,
		"db":        &flagDB,
		"format":    &flagFormat,
		"log-level": &flagLogLevel,
	} {
		*dst = v.GetString(name)
	}
	return nil
}

// newLogger builds the stderr logger: human-readable in text mode, JSON
// lines otherwise.
func newLogger(w io.Writer, format, level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if format == "text" {
		w = zerolog.ConsoleWriter{Out: w, NoColor: true}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
