package pipeline

import (
	"aplica-pipeline/internal/dataset"
	"aplica-pipeline/internal/ipeds"
	"aplica-pipeline/internal/schools"
	"aplica-pipeline/internal/store"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
)

// rejections beyond this many are only counted
const reportedRejections = 3

type BuildOptions struct {
	// MergeIpeds joins the processed IPEDS csv onto the scorecard rows when
	// it exists.
	MergeIpeds bool
}

type BuildResult struct {
	Database string
	Loaded   int
	Rejected int
	Inserted int
	Failed   int
	Programs int
	Metadata store.Metadata
	Summary  store.Summary
}

func (p Pipeline) loadRecords(opts BuildOptions) (*dataset.Table, error) {
	path := p.cfg.Paths.ScorecardCSV()
	records, err := dataset.ReadCSVFile(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("input %s not found, run fetch first: %w", path, err)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	p.tel.ReportDebug("loaded scorecard data", "path", path, "rows", records.Len())

	if !opts.MergeIpeds {
		return records, nil
	}
	path = p.cfg.Paths.IpedsMergedCSV()
	merged, err := dataset.ReadCSVFile(path)
	if os.IsNotExist(err) {
		p.tel.ReportWarning(report_pipeline_build, fmt.Errorf("%s not found, building without ipeds data", path))
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return dataset.LeftMerge(records, merged, "id", ipeds.KeyColumn, dataset.Prefix("ipeds.")), nil
}

func (p Pipeline) buildPrograms(ctx context.Context, st *store.Store, inserted []int64) (int, error) {
	path := p.cfg.Paths.IpedsRawCSV(ipeds.Completions)
	completions, err := dataset.ReadCSVFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}

	include := make(map[int64]bool, len(inserted))
	for _, id := range inserted {
		include[id] = true
	}
	programs := ipeds.ProgramsFromCompletions(completions, include)
	result, err := st.InsertPrograms(ctx, programs)
	if err != nil {
		return 0, fmt.Errorf("insert programs: %w", err)
	}
	return len(programs) - result.Failed, nil
}

// Build maps the raw scorecard csv into a freshly created database.
func (p Pipeline) Build(ctx context.Context, opts BuildOptions) (BuildResult, error) {
	records, err := p.loadRecords(opts)
	if err != nil {
		return BuildResult{}, err
	}

	storeOpts := p.storeOptions(true)
	result := BuildResult{
		Database: databaseName(storeOpts),
		Loaded:   records.Len(),
	}

	st, err := store.Open(ctx, storeOpts, p.tel)
	if err != nil {
		return BuildResult{}, fmt.Errorf("open database: %w", err)
	}
	defer st.Close()

	err = st.CreateSchema(ctx)
	if err != nil {
		return BuildResult{}, err
	}
	err = st.SeedMajorCategories(ctx, schools.MajorCategories)
	if err != nil {
		return BuildResult{}, err
	}

	now := p.clock.Now()
	mapped, rejected := schools.MapAll(records.Rows, now)
	result.Rejected = len(rejected)
	for i, r := range rejected {
		if i == reportedRejections {
			break
		}
		p.tel.ReportWarning(report_pipeline_build, fmt.Errorf("skipping row %d: %w", r.Row, r.Err))
	}
	if len(rejected) > 0 {
		p.tel.ReportWarning(report_pipeline_build, fmt.Errorf("skipped %d schools missing a name or unit id", len(rejected)))
	}

	inserted, err := st.InsertSchools(ctx, mapped)
	if err != nil {
		return BuildResult{}, fmt.Errorf("insert schools: %w", err)
	}
	result.Inserted = len(inserted.Inserted)
	result.Failed = inserted.Failed

	result.Programs, err = p.buildPrograms(ctx, st, inserted.Inserted)
	if err != nil {
		return BuildResult{}, err
	}

	result.Summary, err = st.Summary(ctx)
	if err != nil {
		return BuildResult{}, err
	}
	result.Metadata = store.Metadata{
		Version:         p.cfg.Store.Version,
		BuildDate:       now,
		BuildID:         uuid.New(),
		TotalSchools:    result.Inserted,
		AvgCompleteness: result.Summary.AvgCompleteness,
	}
	err = st.WriteMetadata(ctx, result.Metadata)
	if err != nil {
		return BuildResult{}, err
	}

	err = st.Optimize(ctx)
	if err != nil {
		return BuildResult{}, fmt.Errorf("optimize: %w", err)
	}
	err = st.Close()
	if err != nil {
		return BuildResult{}, err
	}

	p.tel.ReportCount(report_pipeline_build, int64(result.Inserted))
	renderBuild(p.out, result)
	return result, nil
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func renderBuild(w io.Writer, r BuildResult) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(w)
	t.SetTitle(r.Database)
	t.AppendHeader(table.Row{"Summary", "Value"})

	s := r.Summary
	t.AppendRows([]table.Row{
		{"Rows loaded", r.Loaded},
		{"Rows skipped", r.Rejected},
		{"Insert failures", r.Failed},
		{"Total schools", s.TotalSchools},
		{"Average completeness score", fmt.Sprintf("%.1f", s.AvgCompleteness)},
		{"Schools with admit rate", fmt.Sprintf("%d (%.1f%%)", s.WithAdmitRate, percent(s.WithAdmitRate, s.TotalSchools))},
		{"Schools with cost data", fmt.Sprintf("%d (%.1f%%)", s.WithCost, percent(s.WithCost, s.TotalSchools))},
		{"Programs", r.Programs},
	})
	t.AppendFooter(table.Row{"Build", r.Metadata.BuildID.String()})
	t.Render()
}
