package stats

import (
	"context"
	"io"

	"github.com/verte-zerg/lifelapse/internal/model"
	"github.com/verte-zerg/lifelapse/internal/store"
)

// Report contains precomputed data for history rendering.
type Report struct {
	Runs   []model.RunSummary
	Latest *model.RunRecord
	Dates  []model.DateAggregate
}

// BuildReport loads and prepares data for history rendering.
func BuildReport(ctx context.Context, st *store.Store, cfg model.HistoryConfig) (Report, error) {
	runs, err := st.ListRuns(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	report := Report{Runs: runs}
	if len(runs) == 0 {
		return report, nil
	}

	latest, err := st.GetRun(ctx, runs[len(runs)-1].ID)
	if err != nil {
		return Report{}, err
	}
	report.Latest = &latest

	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	report.Dates, err = st.ListDateAggregates(ctx, ids)
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

// Render writes the full report. width 0 uses the terminal width.
func (r Report) Render(w io.Writer, top, width int) error {
	if err := RenderSummary(w, r.Runs, r.Latest); err != nil {
		return err
	}
	if len(r.Runs) == 0 {
		return nil
	}
	if err := RenderRunTable(w, r.Runs); err != nil {
		return err
	}
	if err := RenderTrend(w, r.Runs, 3, width, defaultPlotHeight); err != nil {
		return err
	}
	return RenderFailingDates(w, r.Dates, top)
}
