package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/snaplog/snaplog/internal/alert"
	"github.com/snaplog/snaplog/internal/codec"
	"github.com/snaplog/snaplog/internal/config"
	"github.com/snaplog/snaplog/internal/hash"
	"github.com/snaplog/snaplog/internal/seqlog"
	"github.com/snaplog/snaplog/internal/storage"
)

const version = "v0.1.0"

var (
	cfgFile  string
	registry *prometheus.Registry

	readFrom    uint64
	readTo      uint64
	readReverse bool
)

var rootCmd = &cobra.Command{
	Use:   "snaplog",
	Short: "snaplog - append-only hash-linked sequence log",
	Long:  `An append-only, hash-linked sequence log stored in bbolt, pebble or PostgreSQL`,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return dumpMetrics()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "snaplog.yaml", "config file path")

	readCmd.Flags().Uint64Var(&readFrom, "from", 0, "first index to read")
	readCmd.Flags().Uint64Var(&readTo, "to", math.MaxUint64, "last index to read")
	readCmd.Flags().BoolVar(&readReverse, "reverse", false, "read from the newest entry backwards")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(appendCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(hasCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(proofCmd)
}

// session is an opened log plus everything needed to tear it down.
type session struct {
	cfg    *config.Config
	store  storage.Store
	log    *seqlog.Log
	alerts *alert.Manager
}

func (s *session) Close() {
	s.store.Close()
}

// location names the log in output and alerts.
func (s *session) location() string {
	if s.cfg.Storage.Engine == config.EnginePostgres {
		return "postgres:" + s.cfg.Storage.Table
	}
	return s.cfg.Storage.Path
}

func openSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var opts []storage.Option
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		if err := storage.RegisterMetrics(registry); err != nil {
			return nil, err
		}
		if err := seqlog.RegisterMetrics(registry); err != nil {
			return nil, err
		}
		opts = append(opts, storage.WithMetrics(storage.PrometheusMetrics{}))
	}

	store, err := storage.Open(ctx, cfg.Storage, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	c, err := codec.New(cfg.Codec.Format, cfg.Codec.Compression)
	if err != nil {
		store.Close()
		return nil, err
	}
	gen, err := hash.NewGenerator(cfg.Hash.Algorithm)
	if err != nil {
		store.Close()
		return nil, err
	}

	l, err := seqlog.New(store,
		seqlog.WithCodec(c),
		seqlog.WithGenerator(gen),
		seqlog.WithLogger(cfg.Log.NewLogger(os.Stderr)),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &session{
		cfg:    cfg,
		store:  store,
		log:    l,
		alerts: alert.NewManager(cfg.Alerts.Enabled, cfg.Alerts.SlackWebhook),
	}, nil
}

func dumpMetrics() error {
	if registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(os.Stderr, mf); err != nil {
			return err
		}
	}
	return nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func short(h string) string {
	if len(h) > 16 {
		return h[:16]
	}
	return h
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("snaplog %s\n", version)
		fmt.Println("Append-only hash-linked sequence log")
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the log store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		switch cfg.Storage.Engine {
		case config.EngineBolt:
			if err := os.MkdirAll(filepath.Dir(cfg.Storage.Path), 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		case config.EnginePebble:
			if err := os.MkdirAll(cfg.Storage.Path, 0755); err != nil {
				return fmt.Errorf("failed to create data directory: %w", err)
			}
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Initialized snaplog store: %s\n", s.location())
		fmt.Printf("Engine: %s\n", s.cfg.Storage.Engine)
		fmt.Printf("Codec: %s\n", codecName(s.cfg.Codec))
		fmt.Printf("Hash: %s\n", s.cfg.Hash.Algorithm)
		return nil
	},
}

func codecName(c config.CodecConfig) string {
	if c.Compression == "" || c.Compression == "none" {
		return c.Format
	}
	return c.Format + "+" + c.Compression
}

var appendCmd = &cobra.Command{
	Use:   "append <value>...",
	Short: "Append values to the log",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		for _, v := range args {
			h, err := s.log.Append(ctx, []byte(v))
			if err != nil {
				if ce := seqlog.AsCommitError(err); ce != nil {
					if aerr := s.alerts.SendCommitFailedAlert(ctx, s.location(), ce.Index, ce.Hash, ce.Err); aerr != nil {
						fmt.Fprintf(os.Stderr, "failed to send alert: %v\n", aerr)
					}
				}
				return fmt.Errorf("failed to append %q: %w", v, err)
			}
			fmt.Println(h)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get <hash>",
	Short: "Print an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		e, err := s.log.Get(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, seqlog.ErrNotFound) {
				return fmt.Errorf("no entry with hash %s", args[0])
			}
			return err
		}

		fmt.Printf("Hash:     %s\n", e.Hash)
		fmt.Printf("Index:    %d\n", e.Index)
		fmt.Printf("Value:    %s\n", e.Value)
		fmt.Printf("Previous: %s\n", orNone(e.Previous))
		fmt.Printf("Next:     %s\n", orNone(e.Next))
		return nil
	},
}

func orNone(h string) string {
	if h == "" {
		return "(none)"
	}
	return h
}

var hasCmd = &cobra.Command{
	Use:   "has <hash>",
	Short: "Report whether an entry exists",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		ok, err := s.log.Has(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display log status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Store: %s (%s)\n", s.location(), s.cfg.Storage.Engine)

		index, ok, err := s.log.CurrentIndex(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("Log is empty")
			return nil
		}
		first, _, err := s.log.FirstHash(ctx)
		if err != nil {
			return err
		}
		last, _, err := s.log.LastHash(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Entries: %d\n", index+1)
		fmt.Printf("Current index: %d\n", index)
		fmt.Printf("First hash: %s\n", first)
		fmt.Printf("Last hash: %s\n", last)
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Stream entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ranged := cmd.Flags().Changed("from") || cmd.Flags().Changed("to")
		if readReverse && ranged {
			return errors.New("--reverse cannot be combined with --from or --to")
		}

		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		var it *seqlog.Iterator
		switch {
		case readReverse:
			it = s.log.ReadBackward(ctx)
		case ranged:
			it = s.log.ReadFrom(ctx, readFrom, readTo)
		default:
			it = s.log.ReadAll(ctx)
		}
		defer it.Close()

		for it.Next() {
			e := it.Entry()
			fmt.Printf("%d\t%s\t%s\n", e.Index, e.Hash, e.Value)
		}
		if err := it.Err(); err != nil {
			if ranged && errors.Is(err, seqlog.ErrNotFound) {
				return fmt.Errorf("index %d is beyond the end of the log", readFrom)
			}
			return err
		}
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify hash chain integrity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		fmt.Printf("Verifying log: %s\n", s.location())
		report, err := s.log.Verify(ctx)
		if err != nil {
			var aerr error
			if ie := seqlog.AsIntegrityError(err); ie != nil {
				fmt.Printf("  FAILED at index %d: %s\n", ie.Index, ie.Message)
				aerr = s.alerts.SendChainBrokenAlert(ctx, s.location(), ie.Index, ie.Hash, ie.Message)
			} else {
				fmt.Printf("  FAILED: %v\n", err)
				aerr = s.alerts.SendSystemAlert(ctx, "Verification error", err.Error(), alert.SeverityCritical)
			}
			if aerr != nil {
				fmt.Fprintf(os.Stderr, "failed to send alert: %v\n", aerr)
			}
			return err
		}

		if report.Entries == 0 {
			fmt.Println("  OK: log is empty")
			return nil
		}
		fmt.Printf("  OK: %d entries, hash chain is intact\n", report.Entries)
		fmt.Printf("  First hash: %s\n", short(report.FirstHash))
		fmt.Printf("  Last hash:  %s\n", short(report.LastHash))
		fmt.Printf("  Merkle root: %s\n", report.Root)
		return nil
	},
}

var proofCmd = &cobra.Command{
	Use:   "proof <hash>",
	Short: "Print the Merkle inclusion proof of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := s.log.Verify(ctx)
		if err != nil {
			return err
		}
		proof, err := s.log.Proof(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Printf("Leaf:  %s (position %d)\n", proof.LeafHash, proof.LeafIndex)
		for i, sibling := range proof.Siblings {
			side := "left"
			if proof.Directions[i] {
				side = "right"
			}
			fmt.Printf("  %-5s %s\n", side, sibling)
		}
		fmt.Printf("Root:  %s\n", report.Root)
		fmt.Printf("Valid: %t\n", proof.Verify(report.Root))
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
