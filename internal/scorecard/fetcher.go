package scorecard

import (
	"aplica-pipeline/internal/components/assert"
	"aplica-pipeline/internal/components/chrono"
	"aplica-pipeline/internal/components/telemetry"
	"aplica-pipeline/internal/dataset"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_fetcher_fetch      = "fetcher.fetch"
	report_fetcher_page       = "fetcher.page"
	report_fetcher_retry      = "fetcher.retry"
	report_fetcher_check_rate = "fetcher.check-rate-limit"
)

// Options configures a Fetcher. Use DefaultOptions and override what you need.
type Options struct {
	BaseUrl string
	ApiKey  string
	Fields  []string
	PerPage int

	// RequestDelay is the minimum spacing of two page requests, retries of
	// a page are spaced by their own wait instead.
	RequestDelay time.Duration
	// RetryDelay is waited before retrying a timed out or failed request.
	RetryDelay time.Duration
	// BackoffBase is the rate limit wait of the first attempt when the
	// server gives no Retry-After, doubled for every following attempt.
	BackoffBase time.Duration
	Timeout     time.Duration
	// MaxRetries is the number of attempts made for a single page.
	MaxRetries int
	// PageCeiling is a hard bound on the number of pages requested.
	PageCeiling int
}

func DefaultOptions(baseUrl, apiKey string) Options {
	return Options{
		BaseUrl:      baseUrl,
		ApiKey:       apiKey,
		Fields:       Fields,
		PerPage:      100,
		RequestDelay: 3 * time.Second,
		RetryDelay:   2 * time.Second,
		BackoffBase:  10 * time.Second,
		Timeout:      60 * time.Second,
		MaxRetries:   3,
		PageCeiling:  1000,
	}
}

// Limits are the caller supplied stopping constraints of a fetch, zero
// values mean unlimited.
type Limits struct {
	// FirstPageOnly stops after the first page.
	FirstPageOnly bool
	// MaxSchools stops once this many records were fetched, trimming the
	// result to exactly this many.
	MaxSchools int
	// MaxPages stops after this many pages.
	MaxPages int
}

// FetchState is the state of a single Fetch call.
type FetchState struct {
	Page    int
	Retries int
	Records []dataset.Record
	// Delay is the last wait applied before a retry.
	Delay time.Duration
}

type Fetcher struct {
	http    *resty.Client
	opts    Options
	clock   chrono.API
	limiter *chrono.Limiter
	tel     telemetry.API
}

func NewFetcher(opts Options, clock chrono.API, tel telemetry.API) *Fetcher {
	assert.NotEmptyStr(opts.BaseUrl)
	assert.NotEmptyStr(opts.ApiKey)
	assert.Positive(opts.PerPage)
	assert.Positive(opts.MaxRetries)
	assert.Positive(opts.PageCeiling)
	assert.NotNil(clock)
	assert.NotNil(tel)
	if len(opts.Fields) == 0 {
		opts.Fields = Fields
	}

	tel = telemetry.NewScopedAPI("scorecard", tel)

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	client.SetHeader("accept", "application/json")
	telemetry.InstrumentResty(client, "aplica/scorecard", tel)

	return &Fetcher{
		http:    client,
		opts:    opts,
		clock:   clock,
		limiter: chrono.NewLimiter(clock, opts.RequestDelay),
		tel:     tel,
	}
}

type outcome int

const (
	outcomeSuccess outcome = iota
	outcomeRetryable
	outcomeFatal
)

type pageMetadata struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

type pageResponse struct {
	Results  []map[string]any `json:"results"`
	Metadata pageMetadata     `json:"metadata"`
	Error    json.RawMessage  `json:"error"`
	Message  string           `json:"message"`
}

type attempt struct {
	outcome outcome
	page    pageResponse
	// wait is how long to wait before retrying, only set when retryable
	wait time.Duration
	err  error
}

func (f *Fetcher) query(page, perPage int, fields []string) map[string]string {
	return map[string]string{
		"api_key":          f.opts.ApiKey,
		"school.operating": "1",
		"fields":           strings.Join(fields, ","),
		"per_page":         strconv.Itoa(perPage),
		"page":             strconv.Itoa(page),
	}
}

func decodePage(body []byte) (pageResponse, error) {
	var page pageResponse
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	err := dec.Decode(&page)
	return page, err
}

// hasError reports whether an error key carrying a non-null value is present.
func (p pageResponse) hasError() bool {
	trimmed := bytes.TrimSpace(p.Error)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

func (p pageResponse) errorText() string {
	var parts []string
	if p.hasError() {
		var obj struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		var text string
		switch {
		case json.Unmarshal(p.Error, &text) == nil:
			parts = append(parts, text)
		case json.Unmarshal(p.Error, &obj) == nil && (obj.Code != "" || obj.Message != ""):
			parts = append(parts, strings.TrimSpace(obj.Code+" "+obj.Message))
		default:
			parts = append(parts, string(p.Error))
		}
	}
	if p.Message != "" {
		parts = append(parts, p.Message)
	}
	return strings.Join(parts, ": ")
}

// MaxRetryAfter bounds the wait requested by a Retry-After header.
const MaxRetryAfter = time.Hour

// retryAfter parses a Retry-After header given either in seconds or as an
// http date, waits above MaxRetryAfter are capped.
func retryAfter(header string, now time.Time) (time.Duration, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, false
	}
	if secs, err := strconv.ParseUint(header, 10, 64); err == nil {
		if secs > uint64(MaxRetryAfter/time.Second) {
			return MaxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}
	at, err := http.ParseTime(header)
	if err != nil {
		return 0, false
	}
	wait := at.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return min(wait, MaxRetryAfter), true
}

func (f *Fetcher) backoff(try int) time.Duration {
	return f.opts.BackoffBase * time.Duration(1<<try)
}

func (f *Fetcher) request(ctx context.Context, page, try int) attempt {
	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(f.query(page, f.opts.PerPage, f.opts.Fields)).
		Get(f.opts.BaseUrl)
	if err != nil {
		err = telemetry.RedactError(err)
		if ctx.Err() != nil {
			return attempt{outcome: outcomeFatal, err: ctx.Err()}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return attempt{
				outcome: outcomeRetryable,
				wait:    f.opts.RetryDelay,
				err:     fmt.Errorf("%w: request timeout: %w", ErrTransient, err),
			}
		}
		return attempt{
			outcome: outcomeRetryable,
			wait:    f.opts.RetryDelay,
			err:     fmt.Errorf("%w: %w", ErrTransient, err),
		}
	}

	switch res.StatusCode() {
	case http.StatusOK:
		body, err := decodePage(res.Body())
		if err != nil {
			return attempt{outcome: outcomeFatal, err: fmt.Errorf("decode page %d: %w", page, err)}
		}
		if body.hasError() {
			return attempt{outcome: outcomeFatal, err: fmt.Errorf("%w: %s", ErrAPIError, body.errorText())}
		}
		return attempt{outcome: outcomeSuccess, page: body}
	case http.StatusTooManyRequests:
		wait, ok := retryAfter(res.Header().Get("Retry-After"), f.clock.Now())
		if !ok {
			wait = f.backoff(try)
		}
		return attempt{
			outcome: outcomeRetryable,
			wait:    wait,
			err:     fmt.Errorf("%w (429)", ErrRateLimited),
		}
	case http.StatusBadRequest:
		detail := strings.TrimSpace(string(res.Body()))
		if body, err := decodePage(res.Body()); err == nil && body.errorText() != "" {
			detail = body.errorText()
		}
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return attempt{
			outcome: outcomeFatal,
			err:     fmt.Errorf("%w: %s (check field names and api key)", ErrBadRequest, detail),
		}
	default:
		return attempt{
			outcome: outcomeFatal,
			err:     fmt.Errorf("%w: %s", ErrHTTPStatus, res.Status()),
		}
	}
}

// fetchPage requests the state's current page, retrying retryable failures
// until the attempt ceiling is reached.
func (f *Fetcher) fetchPage(ctx context.Context, state *FetchState) (pageResponse, error) {
	err := f.limiter.Wait(ctx)
	if err != nil {
		return pageResponse{}, err
	}
	for try := 0; ; try++ {
		state.Retries = try
		result := f.request(ctx, state.Page, try)

		switch result.outcome {
		case outcomeSuccess:
			return result.page, nil
		case outcomeFatal:
			return pageResponse{}, fmt.Errorf("page %d: %w", state.Page, result.err)
		}

		if try >= f.opts.MaxRetries-1 {
			return pageResponse{}, fmt.Errorf(
				"page %d: giving up after %d attempts: %w",
				state.Page, f.opts.MaxRetries, result.err,
			)
		}

		state.Delay = result.wait
		f.tel.ReportWarning(
			report_fetcher_retry,
			result.err,
			"page", state.Page,
			"attempt", try+1,
			"wait", result.wait.String(),
		)
		err = f.clock.Sleep(ctx, result.wait)
		if err != nil {
			return pageResponse{}, err
		}
	}
}

// flatten collapses nested objects into dot-delimited keys, the api returns
// flat keys when fields are requested explicitly.
func flatten(prefix string, obj map[string]any, out dataset.Record) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = dataset.FromJSON(v)
	}
}

// done reports whether the fetch should stop after a successful page.
func (f *Fetcher) done(state *FetchState, limits Limits, page pageResponse) (bool, string) {
	fetched := len(state.Records)
	switch {
	case limits.FirstPageOnly:
		return true, "first page only"
	case limits.MaxSchools > 0 && fetched >= limits.MaxSchools:
		return true, fmt.Sprintf("reached limit of %d schools", limits.MaxSchools)
	case limits.MaxPages > 0 && state.Page >= limits.MaxPages-1:
		return true, fmt.Sprintf("reached max pages (%d)", limits.MaxPages)
	}

	total := page.Metadata.Total
	if total > 0 {
		totalPages := (total + int64(f.opts.PerPage) - 1) / int64(f.opts.PerPage)
		if int64(fetched) >= total {
			return true, fmt.Sprintf("reached total of %d schools", total)
		}
		if int64(state.Page) >= totalPages-1 {
			return true, fmt.Sprintf("reached last page (%d)", totalPages)
		}
	}
	if len(page.Results) < f.opts.PerPage {
		return true, "last page reached (fewer results than per_page)"
	}
	if state.Page >= f.opts.PageCeiling-1 {
		f.tel.ReportWarning(report_fetcher_fetch, fmt.Errorf("safety limit of %d pages reached", f.opts.PageCeiling))
		return true, "safety limit reached"
	}
	return false, ""
}

// Fetch requests pages until a stop condition is met or a request fails
// fatally. No partial result is returned on error.
func (f *Fetcher) Fetch(ctx context.Context, limits Limits) ([]dataset.Record, error) {
	state := &FetchState{}

	for {
		page, err := f.fetchPage(ctx, state)
		if err != nil {
			f.tel.ReportBroken(report_fetcher_fetch, err)
			return nil, err
		}
		if len(page.Results) == 0 {
			f.tel.ReportDebug("no more results", "page", state.Page)
			break
		}

		for _, obj := range page.Results {
			rec := make(dataset.Record, len(obj))
			flatten("", obj, rec)
			state.Records = append(state.Records, rec)
		}
		f.tel.ReportDebug(
			report_fetcher_page,
			"page", state.Page,
			"retrieved", len(page.Results),
			"total", len(state.Records),
			"reported_total", page.Metadata.Total,
		)
		f.tel.ReportCount(report_fetcher_fetch, int64(len(state.Records)))

		stop, reason := f.done(state, limits, page)
		if stop {
			f.tel.ReportDebug("stopping", "page", state.Page, "reason", reason)
			break
		}

		state.Page++
	}

	if len(state.Records) == 0 {
		f.tel.ReportBroken(report_fetcher_fetch, ErrNoData)
		return nil, ErrNoData
	}
	if limits.MaxSchools > 0 && len(state.Records) > limits.MaxSchools {
		state.Records = state.Records[:limits.MaxSchools]
	}
	return state.Records, nil
}

// RateLimitStatus is the result of CheckRateLimit.
type RateLimitStatus struct {
	Available   bool
	RateLimited bool
	StatusCode  int
	// RetryAfter is the raw Retry-After header of a rate limited response.
	RetryAfter string
	// SampleName is the name of the school returned by a successful probe.
	SampleName string
}

// CheckRateLimit probes the api with a single one-record request, it never
// retries.
func (f *Fetcher) CheckRateLimit(ctx context.Context) (RateLimitStatus, error) {
	res, err := f.http.R().
		SetContext(ctx).
		SetQueryParams(f.query(0, 1, []string{"id", "school.name"})).
		Get(f.opts.BaseUrl)
	if err != nil {
		err = telemetry.RedactError(err)
		f.tel.ReportBroken(report_fetcher_check_rate, err)
		return RateLimitStatus{}, fmt.Errorf("%w: %w", ErrTransient, err)
	}

	status := RateLimitStatus{StatusCode: res.StatusCode()}
	switch res.StatusCode() {
	case http.StatusOK:
		page, err := decodePage(res.Body())
		if err != nil {
			return status, fmt.Errorf("decode probe: %w", err)
		}
		if page.hasError() {
			return status, fmt.Errorf("%w: %s", ErrAPIError, page.errorText())
		}
		status.Available = len(page.Results) > 0
		if status.Available {
			status.SampleName = dataset.FromJSON(page.Results[0]["school.name"]).String()
		}
	case http.StatusTooManyRequests:
		status.RateLimited = true
		status.RetryAfter = res.Header().Get("Retry-After")
	}
	return status, nil
}
