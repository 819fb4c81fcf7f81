package ipeds

import (
	"aplica-pipeline/internal/components/assert"
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/dataset"
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/text/encoding/charmap"
)

const (
	report_client_download = "client.download"
	report_merge           = "merge"
)

// Dataset is one IPEDS survey file.
type Dataset struct {
	Code        string
	Description string
}

// Directory is the base dataset every other survey is joined onto.
const Directory = "HD"

// Completions holds one row per school, program and award level, it is kept
// out of the merge and turned into programs instead.
const Completions = "C_A"

var Datasets = []Dataset{
	{Code: Directory, Description: "Directory Information"},
	{Code: "ADM", Description: "Admissions"},
	{Code: "SFA", Description: "Student Financial Aid"},
	{Code: "GR", Description: "Graduation Rates"},
	{Code: Completions, Description: "Completions by Program"},
}

// KeyColumn is the institution id column of every IPEDS file.
const KeyColumn = "UNITID"

var ErrNoCSV = errors.New("archive contains no csv file")

type Client struct {
	http    *resty.Client
	baseUrl string
	year    string
	tel     telemetry.API
}

// NewClient creates a client downloading the survey files of `year`,
// requests are spaced at least `delay` apart.
func NewClient(baseUrl, year string, timeout, delay time.Duration, clock chrono.API, tel telemetry.API) *Client {
	assert.NotEmptyStr(baseUrl)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if len(year) < 2 {
		panic("expected a 4 digit year")
	}

	tel = telemetry.NewScopedAPI("ipeds", tel)

	client := resty.New()
	client.SetTimeout(timeout)

	limiter := chrono.NewLimiter(clock, delay)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})
	telemetry.InstrumentResty(client, "aplica/ipeds", tel)

	return &Client{
		http:    client,
		baseUrl: strings.TrimSuffix(baseUrl, "/"),
		year:    year,
		tel:     tel,
	}
}

// Filename is the archive name of a dataset, e.g. HD23.zip for 2023.
func (c *Client) Filename(code string) string {
	return fmt.Sprintf("%s%s.zip", code, c.year[len(c.year)-2:])
}

// Download fetches and decodes the csv of a dataset.
func (c *Client) Download(ctx context.Context, code string) (*dataset.Table, error) {
	url := c.baseUrl + "/" + c.Filename(code)
	res, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		c.tel.ReportWarning(report_client_download, fmt.Errorf("%s: %w", code, err))
		return nil, err
	}
	if res.StatusCode() != http.StatusOK {
		err := fmt.Errorf("%s: unexpected status %s", code, res.Status())
		c.tel.ReportWarning(report_client_download, err)
		return nil, err
	}

	table, err := Extract(res.Body())
	if err != nil {
		err = fmt.Errorf("%s: %w", code, err)
		c.tel.ReportWarning(report_client_download, err)
		return nil, err
	}
	c.tel.ReportDebug("downloaded dataset", "code", code, "rows", table.Len(), "columns", len(table.Columns))
	return table, nil
}

// Extract reads the first csv of a zip archive, IPEDS files are Latin-1
// encoded.
func Extract(archive []byte) (*dataset.Table, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	for _, f := range reader.File {
		if !strings.HasSuffix(strings.ToLower(f.Name), ".csv") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()
		table, err := dataset.ReadCSV(charmap.ISO8859_1.NewDecoder().Reader(rc))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
		return table, nil
	}
	return nil, ErrNoCSV
}

// Merge left joins every downloaded survey other than completions onto the
// directory on UNITID. Colliding columns get a _<CODE> suffix, the first row
// of a survey wins when it repeats a UNITID.
func Merge(tables map[string]*dataset.Table, tel telemetry.API) (*dataset.Table, error) {
	tel = telemetry.NewScopedAPI("ipeds", tel)

	merged, ok := tables[Directory]
	if !ok {
		return nil, fmt.Errorf("cannot merge without the %s dataset", Directory)
	}
	for _, d := range Datasets {
		if d.Code == Directory || d.Code == Completions {
			continue
		}
		table, ok := tables[d.Code]
		if !ok {
			continue
		}
		if !table.HasColumn(KeyColumn) {
			tel.ReportWarning(report_merge, fmt.Errorf("%s has no %s column, skipping", d.Code, KeyColumn))
			continue
		}
		merged = dataset.LeftMerge(
			merged, table,
			KeyColumn, KeyColumn,
			dataset.SuffixCollisions(merged, "_"+d.Code),
		)
	}
	return merged, nil
}
