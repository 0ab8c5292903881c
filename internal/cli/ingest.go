package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/qcmask/internal/ingest"
	"github.com/roach88/qcmask/internal/metrics"
	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/reconcile"
	"github.com/roach88/qcmask/internal/source"
	"github.com/roach88/qcmask/internal/store"
)

// Error codes for store and ingest failures.
const (
	ErrCodeStoreOpen    = "E010" // Database could not be opened
	ErrCodeSourceFailed = "E011" // Records file missing or malformed
	ErrCodeIngestFailed = "E012" // A record failed to reconcile
	ErrCodeMetrics      = "E013" // Metrics textfile could not be written
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	DB          string        // SQLite database path
	MetricsFile string        // Prometheus textfile path
	ReplayFrom  string        // replay another database's record ledger
	MinimumGap  time.Duration // gap-fill threshold
}

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Records  int             `json:"records"`
	Outcomes map[string]int  `json:"outcomes"`
	Reports  []ingest.Report `json:"reports"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [records.yaml]",
		Short: "Reconcile provider records into QC segments",
		Long: `Reconcile a batch of provider QC mask records into the segment store.

Records are applied in load-time order. Records already in the store's
ledger are skipped, so re-running a batch is safe.

Exit codes:
  0 - All records ingested
  1 - A record failed to reconcile
  2 - Command error (missing file, database error, etc.)

Examples:
  qcmask ingest --db qc.db records.yaml
  qcmask ingest --db qc.db --metrics-file qcmask.prom records.yaml
  qcmask ingest --db rebuilt.db --replay-from qc.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	cmd.Flags().StringVar(&opts.ReplayFrom, "replay-from", "", "replay the record ledger of another database")
	cmd.Flags().DurationVar(&opts.MinimumGap, "minimum-gap", reconcile.DefaultMinimumGap, "shortest uncovered interval that becomes its own segment")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runIngest(ctx context.Context, opts *IngestOptions, args []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	src, closeSrc, err := ingestSource(opts, args)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSourceFailed, "cannot read records", err)
	}
	defer closeSrc()

	st, err := store.Open(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "cannot open database", err)
	}
	defer st.Close()

	m := metrics.New()
	svc := ingest.New(st, qc.UUIDv7Generator{}, qc.SystemClock{},
		ingest.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())),
		ingest.WithMetrics(m),
		ingest.WithMinimumGap(opts.MinimumGap),
	)

	records, err := src.Records(ctx)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSourceFailed, "cannot read records", err)
	}
	formatter.VerboseLog("Ingesting %d record(s) into %s", len(records), opts.DB)
	reports, ingestErr := svc.IngestAll(ctx, source.Batch(records))

	if opts.MetricsFile != "" {
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeMetrics, "cannot write metrics", err)
		}
	}

	if ingestErr != nil {
		code, exit := failureFor(ingestErr, ErrCodeIngestFailed)
		_ = formatter.Error(code, ingestErr.Error(), summarize(reports))
		return WrapExitError(exit, fmt.Sprintf("ingest stopped after %d record(s)", len(reports)), ingestErr)
	}

	result := summarize(reports)
	return formatter.Render(result, func(w io.Writer) {
		writeIngestText(w, opts.DB, result)
	})
}

// ingestSource picks the records file or the replayed ledger. Exactly one
// must be given.
func ingestSource(opts *IngestOptions, args []string) (source.Source, func(), error) {
	switch {
	case opts.ReplayFrom != "" && len(args) > 0:
		return nil, nil, errors.New("give either a records file or --replay-from, not both")
	case opts.ReplayFrom != "":
		if _, err := os.Stat(opts.ReplayFrom); err != nil {
			return nil, nil, fmt.Errorf("replay database: %w", err)
		}
		from, err := store.Open(opts.ReplayFrom)
		if err != nil {
			return nil, nil, err
		}
		return &source.StoreSource{Reader: from}, func() { _ = from.Close() }, nil
	case len(args) == 1:
		return source.NewFileSource(args[0]), func() {}, nil
	default:
		return nil, nil, errors.New("a records file or --replay-from is required")
	}
}

func summarize(reports []ingest.Report) IngestResult {
	result := IngestResult{
		Records:  len(reports),
		Outcomes: make(map[string]int),
		Reports:  reports,
	}
	if result.Reports == nil {
		result.Reports = []ingest.Report{}
	}
	for _, r := range reports {
		result.Outcomes[string(r.Outcome)]++
	}
	return result
}

func writeIngestText(w io.Writer, db string, result IngestResult) {
	fmt.Fprintf(w, "✓ Ingested %d record(s) into %s\n", result.Records, db)

	outcomes := make([]string, 0, len(result.Outcomes))
	for o := range result.Outcomes {
		outcomes = append(outcomes, o)
	}
	slices.Sort(outcomes)
	for _, o := range outcomes {
		fmt.Fprintf(w, "  %-10s %d\n", o, result.Outcomes[o])
	}
	for _, r := range result.Reports {
		if r.Unclassified {
			fmt.Fprintf(w, "  ! record %d on %s has an unknown mask type, filed as UNPROCESSED\n", r.RecordID, r.Channel)
		}
	}
}

// openExisting opens a database that must already exist.
func openExisting(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	return store.Open(path)
}
