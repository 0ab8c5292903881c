package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/qcmask/internal/qc"
)

// Snapshot renders a scenario result as canonical JSON: record steps, the
// final segments with their version histories, and derived masks. Two runs
// of the same scenario produce identical bytes.
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, s := range result.Steps {
		ids := make([]string, len(s.Segments))
		for j, id := range s.Segments {
			ids[j] = id.String()
		}
		m := map[string]any{
			"record_id": s.RecordID,
			"outcome":   s.Outcome,
			"segments":  ids,
		}
		if s.Error != "" {
			m["error"] = s.Error
		}
		steps[i] = m
	}

	segs := make([]any, len(result.Segments))
	for i, seg := range result.Segments {
		versions := make([]any, len(seg.Data.Versions))
		for j, v := range seg.Data.Versions {
			versions[j] = snapshotVersion(v)
		}
		segs[i] = map[string]any{
			"id":       seg.ID.String(),
			"versions": versions,
		}
	}

	snapshot := map[string]any{
		"name":     name,
		"steps":    steps,
		"segments": segs,
	}

	if result.Masks != nil {
		masks := make([]any, len(result.Masks))
		for i, m := range result.Masks {
			masked := make([]string, len(m.Data.Masked))
			for j, v := range m.Data.Masked {
				masked[j] = fmt.Sprintf("%s@%s", v.ID.SegmentID, formatTime(v.ID.EffectiveAt))
			}
			masks[i] = map[string]any{
				"id":           m.ID.String(),
				"operation":    string(m.Data.Operation),
				"effective_at": m.Data.EffectiveAt,
				"start":        m.Data.Start,
				"end":          m.Data.End,
				"masked":       masked,
			}
		}
		snapshot["masks"] = masks
	}

	return qc.MarshalCanonical(snapshot)
}

func snapshotVersion(v qc.QcSegmentVersion) map[string]any {
	m := map[string]any{
		"effective_at": v.ID.EffectiveAt,
		"start":        v.Data.Start,
		"end":          v.Data.End,
		"category":     string(v.Data.Category),
		"rationale":    v.Data.Rationale,
		"rejected":     v.Data.Rejected,
	}
	if v.Data.Type.HasType() {
		m["type"] = string(v.Data.Type)
	}
	if len(v.Data.Waveforms) > 0 {
		m["start_sample"] = v.Data.Waveforms[0].StartSample
		m["end_sample"] = v.Data.Waveforms[0].EndSample
	}
	return m
}

// RunWithGolden executes a scenario, fails the test on any assertion error,
// and compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, e := range result.Errors {
		t.Error(e)
	}

	data, err := Snapshot(scenario.Name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
