package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/qcmask/internal/ingest"
	"github.com/roach88/qcmask/internal/maskdef"
	"github.com/roach88/qcmask/internal/qc"
)

// DeriveOptions holds flags for the derive command.
type DeriveOptions struct {
	*RootOptions
	DB         string
	DefsDir    string
	Definition string
	Channel    string
	Start      string
	End        string
	Save       bool
}

// DeriveResult lists the masks one derive run produced.
type DeriveResult struct {
	Definition string              `json:"definition"`
	Channel    string              `json:"channel"`
	Saved      bool                `json:"saved"`
	Masks      []qc.ProcessingMask `json:"masks"`
}

// NewDeriveCommand creates the derive command.
func NewDeriveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeriveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Derive processing masks for a channel",
		Long: `Derive processing masks from the latest version of every QC segment
on a channel, using a named definition from a CUE definitions directory.

--start and --end (RFC 3339) bound the window; either may be omitted.

Examples:
  qcmask derive --db qc.db --defs ./defs --definition fk_spectra --channel ASAR.BHZ
  qcmask derive --db qc.db --defs ./defs --definition fk_spectra --channel ASAR.BHZ \
      --start 2024-03-01T00:00:00Z --end 2024-03-02T00:00:00Z --save`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDerive(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.DefsDir, "defs", "", "directory of CUE mask definitions (required)")
	cmd.Flags().StringVar(&opts.Definition, "definition", "", "definition name (required)")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "channel as STA.CHAN (required)")
	cmd.Flags().StringVar(&opts.Start, "start", "", "window start (RFC 3339)")
	cmd.Flags().StringVar(&opts.End, "end", "", "window end (RFC 3339)")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "persist the derived masks")
	for _, name := range []string{"db", "defs", "definition", "channel"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runDerive(ctx context.Context, opts *DeriveOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	ch, err := parseChannel(opts.Channel)
	if err != nil {
		return err
	}
	start, err := parseTime("start", opts.Start)
	if err != nil {
		return err
	}
	end, err := parseTime("end", opts.End)
	if err != nil {
		return err
	}

	loaded, loadErrs := maskdef.Load(opts.DefsDir, maskdef.LoadModeFailFast)
	if len(loadErrs) > 0 {
		code := maskdef.ErrCodeGeneric
		var le *maskdef.LoadError
		if errors.As(loadErrs[0], &le) {
			code = le.Code
		}
		return formatter.Fail(ExitCommandError, code, "cannot load definitions", loadErrs[0])
	}
	def, ok := loaded.Lookup(opts.Definition)
	if !ok {
		return formatter.Fail(ExitCommandError, maskdef.ErrCodeGeneric,
			fmt.Sprintf("definition %q not found (have %v)", opts.Definition, loaded.Names()), nil)
	}

	st, err := openExisting(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "cannot open database", err)
	}
	defer st.Close()

	svc := ingest.New(st, qc.UUIDv7Generator{}, qc.SystemClock{},
		ingest.WithLogger(newLogger(opts.RootOptions, cmd.ErrOrStderr())))

	masks, err := svc.Derive(ctx, ch, start, end, def, opts.Save)
	if err != nil {
		code, exit := failureFor(err, ErrCodeIngestFailed)
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(exit, "derive failed", err)
	}

	result := DeriveResult{
		Definition: def.Name,
		Channel:    ch.Name(),
		Saved:      opts.Save,
		Masks:      masks,
	}
	return formatter.Render(result, func(w io.Writer) {
		writeDeriveText(w, result)
	})
}

func writeDeriveText(w io.Writer, result DeriveResult) {
	verb := "Derived"
	if result.Saved {
		verb = "Derived and saved"
	}
	fmt.Fprintf(w, "✓ %s %d mask(s) on %s with %s\n", verb, len(result.Masks), result.Channel, result.Definition)
	for _, m := range result.Masks {
		fmt.Fprintf(w, "  %s  %s  [%s, %s)  %d version(s)\n",
			m.ID, m.Data.Operation, formatTime(m.Data.Start), formatTime(m.Data.End), len(m.Data.Masked))
	}
}
