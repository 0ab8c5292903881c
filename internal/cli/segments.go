package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/qcmask/internal/qc"
	"github.com/roach88/qcmask/internal/store"
)

// SegmentsOptions holds flags for the segments command.
type SegmentsOptions struct {
	*RootOptions
	DB      string
	Channel string
	Masks   bool
}

// SegmentsResult is the stored state of one channel.
type SegmentsResult struct {
	Channel  string              `json:"channel"`
	Segments []qc.QcSegment      `json:"segments"`
	Masks    []qc.ProcessingMask `json:"masks,omitempty"`
}

// NewSegmentsCommand creates the segments command.
func NewSegmentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SegmentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List a channel's QC segments and their versions",
		Long: `List every QC segment stored for a channel with its full version
history, oldest version first. --masks also lists saved processing masks.

Examples:
  qcmask segments --db qc.db --channel ASAR.BHZ
  qcmask segments --db qc.db --channel ASAR.BHZ --masks --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSegments(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "channel as STA.CHAN (required)")
	cmd.Flags().BoolVar(&opts.Masks, "masks", false, "include saved processing masks")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("channel")

	return cmd
}

func runSegments(ctx context.Context, opts *SegmentsOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd)

	ch, err := parseChannel(opts.Channel)
	if err != nil {
		return err
	}

	st, err := openExisting(opts.DB)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "cannot open database", err)
	}
	defer st.Close()

	segs, err := st.ListSegments(ctx, ch)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "cannot read segments", err)
	}
	result := SegmentsResult{Channel: ch.Name(), Segments: segs}
	if result.Segments == nil {
		result.Segments = []qc.QcSegment{}
	}

	var saved []store.SavedMask
	if opts.Masks {
		saved, err = st.ReadProcessingMasks(ctx, ch)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStoreOpen, "cannot read masks", err)
		}
		result.Masks = make([]qc.ProcessingMask, len(saved))
		for i, s := range saved {
			result.Masks[i] = s.Mask
		}
	}

	return formatter.Render(result, func(w io.Writer) {
		writeSegmentsText(w, result, saved)
	})
}

func writeSegmentsText(w io.Writer, result SegmentsResult, saved []store.SavedMask) {
	fmt.Fprintf(w, "%s: %d segment(s)\n", result.Channel, len(result.Segments))
	for _, seg := range result.Segments {
		fmt.Fprintf(w, "\n%s\n", seg.ID)
		for _, v := range seg.Data.Versions {
			d := v.Data
			status := ""
			if d.Rejected {
				status = " rejected"
			}
			fmt.Fprintf(w, "  @%s  %s  [%s, %s)%s\n    %s\n",
				formatTime(v.ID.EffectiveAt), d.Classification(),
				formatTime(d.Start), formatTime(d.End), status, d.Rationale)
		}
	}
	if len(saved) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%d mask(s)\n", len(saved))
	for _, s := range saved {
		m := s.Mask
		fmt.Fprintf(w, "  %s  %s/%s  [%s, %s)  %d version(s)\n",
			m.ID, s.Definition, m.Data.Operation,
			formatTime(m.Data.Start), formatTime(m.Data.End), len(m.Data.Masked))
	}
}
