package pipeline

import (
	"aplica-pipeline/internal/components/assert"
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/config"
	"aplica-pipeline/internal/dataset"
	"aplica-pipeline/internal/ipeds"
	"aplica-pipeline/internal/scorecard"
	"aplica-pipeline/internal/store"
	"aplica-pipeline/internal/validate"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
)

const (
	report_pipeline_fetch    = "pipeline.fetch"
	report_pipeline_ipeds    = "pipeline.ipeds"
	report_pipeline_build    = "pipeline.build"
	report_pipeline_validate = "pipeline.validate"
)

// Pipeline runs the stages of a database build against the directories and
// endpoints of a config. Console summaries are written to `out`.
type Pipeline struct {
	cfg   config.Config
	clock chrono.API
	tel   telemetry.API
	out   io.Writer
}

func New(cfg config.Config, clock chrono.API, tel telemetry.API, out io.Writer) Pipeline {
	assert.NotNil(clock)
	assert.NotNil(tel)
	assert.NotNil(out)
	assert.NotEmptyStr(cfg.Store.Version)

	return Pipeline{
		cfg:   cfg,
		clock: clock,
		tel:   telemetry.NewScopedAPI("pipeline", tel),
		out:   out,
	}
}

func (p Pipeline) fetcherOptions() scorecard.Options {
	sc := p.cfg.Scorecard
	opts := scorecard.DefaultOptions(sc.BaseUrl, p.cfg.ApiKey)
	opts.PerPage = sc.PerPage
	opts.RequestDelay = sc.RequestDelay()
	opts.RetryDelay = sc.RetryDelay()
	opts.BackoffBase = sc.BackoffBase()
	opts.Timeout = sc.Timeout()
	opts.MaxRetries = sc.MaxRetries
	opts.PageCeiling = sc.PageCeiling
	return opts
}

// Fetch downloads every school matching the limits and writes them to the
// raw scorecard csv, it returns the number of records written.
func (p Pipeline) Fetch(ctx context.Context, limits scorecard.Limits) (int, error) {
	err := p.cfg.RequireApiKey()
	if err != nil {
		return 0, err
	}

	fetcher := scorecard.NewFetcher(p.fetcherOptions(), p.clock, p.tel)
	records, err := fetcher.Fetch(ctx, limits)
	if err != nil {
		return 0, err
	}

	path := p.cfg.Paths.ScorecardCSV()
	err = dataset.WriteCSVFile(path, dataset.NewTable(scorecard.Fields, records))
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	p.tel.ReportCount(report_pipeline_fetch, int64(len(records)))
	p.tel.ReportDebug("wrote scorecard data", "path", path, "records", len(records))
	return len(records), nil
}

// CheckRateLimit sends a single one-record request to the api.
func (p Pipeline) CheckRateLimit(ctx context.Context) (scorecard.RateLimitStatus, error) {
	err := p.cfg.RequireApiKey()
	if err != nil {
		return scorecard.RateLimitStatus{}, err
	}
	fetcher := scorecard.NewFetcher(p.fetcherOptions(), p.clock, p.tel)
	return fetcher.CheckRateLimit(ctx)
}

// Ipeds downloads every IPEDS dataset into the raw directory and merges
// them into the processed directory. Datasets that fail to download are
// skipped, it returns the codes that were saved.
func (p Pipeline) Ipeds(ctx context.Context) ([]string, error) {
	client := ipeds.NewClient(
		p.cfg.Ipeds.BaseUrl, p.cfg.Ipeds.Year,
		p.cfg.Scorecard.Timeout(), p.cfg.Ipeds.RequestDelay(),
		p.clock, p.tel,
	)

	tables := map[string]*dataset.Table{}
	var saved []string
	for _, d := range ipeds.Datasets {
		table, err := client.Download(ctx, d.Code)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// already reported by the client
			continue
		}
		path := p.cfg.Paths.IpedsRawCSV(d.Code)
		err = dataset.WriteCSVFile(path, table)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", path, err)
		}
		tables[d.Code] = table
		saved = append(saved, d.Code)
	}
	if len(saved) == 0 {
		return nil, errors.New("no ipeds dataset could be downloaded")
	}

	merged, err := ipeds.Merge(tables, p.tel)
	if err != nil {
		return saved, err
	}
	path := p.cfg.Paths.IpedsMergedCSV()
	err = dataset.WriteCSVFile(path, merged)
	if err != nil {
		return saved, fmt.Errorf("write %s: %w", path, err)
	}
	p.tel.ReportCount(report_pipeline_ipeds, int64(merged.Len()))
	return saved, nil
}

func (p Pipeline) storeOptions(rebuild bool) store.Options {
	return store.Options{
		Path:      p.cfg.Paths.Database(p.cfg.Store.Version),
		Url:       p.cfg.Store.Url,
		AuthToken: p.cfg.Store.AuthToken,
		Rebuild:   rebuild,
	}
}

// databaseName labels a database in summaries and reports, remote urls are
// printed without credentials.
func databaseName(opts store.Options) string {
	if opts.Url == "" {
		return opts.Path
	}
	u, err := url.Parse(opts.Url)
	if err != nil {
		return "remote database"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// ValidateResult is a finished validation and the path of its saved report.
type ValidateResult struct {
	validate.Result
	Report string
}

// Validate checks a built database. An empty `database` validates the
// configured remote store, or else the newest database in the output dir.
func (p Pipeline) Validate(ctx context.Context, database string) (ValidateResult, error) {
	opts := p.storeOptions(false)
	if database != "" {
		opts = store.Options{Path: database}
	} else if opts.Url == "" {
		latest, err := validate.FindLatestDatabase(p.cfg.Paths.OutputDir)
		if err != nil {
			return ValidateResult{}, err
		}
		opts.Path = latest
	}
	opts.ReadOnly = true
	if opts.Url == "" {
		_, err := os.Stat(opts.Path)
		if err != nil {
			return ValidateResult{}, fmt.Errorf("database: %w", err)
		}
	}

	st, err := store.Open(ctx, opts, p.tel)
	if err != nil {
		return ValidateResult{}, err
	}
	defer st.Close()

	result, err := validate.Run(ctx, st, databaseName(opts), p.clock.Now())
	if err != nil {
		p.tel.ReportBroken(report_pipeline_validate, err)
		return ValidateResult{}, err
	}
	validate.Render(p.out, result)

	report, err := validate.SaveReport(p.cfg.Paths.OutputDir, result)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("save report: %w", err)
	}
	if result.Status != validate.StatusPass {
		p.tel.ReportWarning(report_pipeline_validate, fmt.Errorf("validation completed with %d issues", result.Issues))
	}
	return ValidateResult{Result: result, Report: report}, nil
}

type RunOptions struct {
	Limits scorecard.Limits
	// Ipeds downloads and merges IPEDS data before building.
	Ipeds bool
}

// Run executes fetch, the optional IPEDS stage, build and validate in order,
// stopping at the first stage that fails.
func (p Pipeline) Run(ctx context.Context, opts RunOptions) (ValidateResult, error) {
	fmt.Fprintln(p.out, "Step: Fetch College Scorecard Data")
	_, err := p.Fetch(ctx, opts.Limits)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("fetch: %w", err)
	}

	if opts.Ipeds {
		fmt.Fprintln(p.out, "Step: Fetch IPEDS Data")
		_, err = p.Ipeds(ctx)
		if err != nil {
			return ValidateResult{}, fmt.Errorf("ipeds: %w", err)
		}
	}

	fmt.Fprintln(p.out, "Step: Build Database")
	build, err := p.Build(ctx, BuildOptions{MergeIpeds: opts.Ipeds})
	if err != nil {
		return ValidateResult{}, fmt.Errorf("build: %w", err)
	}

	fmt.Fprintln(p.out, "Step: Validate Database")
	database := ""
	if p.cfg.Store.Url == "" {
		database = build.Database
	}
	result, err := p.Validate(ctx, database)
	if err != nil {
		return ValidateResult{}, fmt.Errorf("validate: %w", err)
	}
	return result, nil
}
