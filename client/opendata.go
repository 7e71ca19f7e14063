// Package client provides the data sources the bundled jobs pull from:
// the Korean public data portal (data.go.kr) and a synthetic transaction
// feed for credential-free runs.
//
// Portal responses share one XML envelope: a header with a result code
// ("00" or "000" on success) and a body carrying totalCount plus a list
// of item elements. Fetches walk pages until totalCount records have
// been collected or a page comes back empty.
package client

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/strata/errors"
	"github.com/teranos/strata/internal/httpclient"
)

const (
	// DefaultBaseURL is the public data portal API host.
	DefaultBaseURL = "https://apis.data.go.kr"

	// DefaultTimeout bounds a single page request.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the number of records requested per page.
	DefaultPageSize = 1000

	landTradePath  = "/1613000/RTMSDataSvcLandTrade/getRTMSDataSvcLandTrade"
	regionCodePath = "/1741000/StanReginCd/getStanReginCdList"
)

// APIError reports an error envelope returned by the data portal. The
// request itself succeeded; the portal rejected it.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error [%s]: %s", e.Code, e.Message)
}

// IsAPIError checks whether an error is or wraps a portal error envelope.
func IsAPIError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// PageFunc receives progress after each fetched page.
type PageFunc func(pageNo, pageCount, totalCount int)

// Config holds open-data client configuration.
type Config struct {
	ServiceKey string
	BaseURL    string             // "" = DefaultBaseURL
	Timeout    time.Duration      // 0 = DefaultTimeout
	PageSize   int                // 0 = DefaultPageSize
	Logger     *zap.SugaredLogger // Structured logger (nil = nop logger)
}

// OpenData is a client for the public data portal (data.go.kr) OpenAPI.
type OpenData struct {
	serviceKey string
	baseURL    string
	pageSize   int
	httpClient *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// NewOpenData creates a portal client with SSRF-safer HTTP defaults.
func NewOpenData(config Config) *OpenData {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	return &OpenData{
		serviceKey: config.ServiceKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		pageSize:   config.PageSize,
		httpClient: httpclient.NewSaferClient(config.Timeout),
		logger:     logger,
	}
}

// IsConfigured returns true if the client has a service key.
func (c *OpenData) IsConfigured() bool {
	return c.serviceKey != ""
}

// SetHTTPClient allows overriding the HTTP client for testing.
// Production code should keep the default SSRF-safer client.
func (c *OpenData) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

// FetchLandTrade fetches land trade (real transaction price) records for
// one district and month. lawdCd is the 5-digit legal district code and
// dealYmd the 6-digit year-month (YYYYMM).
func (c *OpenData) FetchLandTrade(ctx context.Context, lawdCd, dealYmd string, onPage PageFunc) ([]map[string]string, error) {
	params := url.Values{}
	params.Set("LAWD_CD", lawdCd)
	params.Set("DEAL_YMD", dealYmd)
	return c.fetchPaginated(ctx, landTradePath, params, onPage)
}

// FetchRegionCodes fetches the standard legal district code registry.
// locataddNm optionally filters by region name prefix.
func (c *OpenData) FetchRegionCodes(ctx context.Context, locataddNm string, onPage PageFunc) ([]map[string]string, error) {
	params := url.Values{}
	params.Set("type", "xml")
	if locataddNm != "" {
		params.Set("locatadd_nm", locataddNm)
	}
	return c.fetchPaginated(ctx, regionCodePath, params, onPage)
}

// DistrictCode is one unique 5-digit district (city/county level) derived
// from the full region registry.
type DistrictCode struct {
	Code   string
	Name   string
	SidoCd string
	SggCd  string
}

// FetchDistrictCodes fetches the region registry and reduces it to unique
// 5-digit district codes, keeping the first name seen for each.
func (c *OpenData) FetchDistrictCodes(ctx context.Context, locataddNm string) ([]DistrictCode, error) {
	records, err := c.FetchRegionCodes(ctx, locataddNm, nil)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	districts := make([]DistrictCode, 0, len(records))
	for _, record := range records {
		fullCode := record["region_cd"]
		if len(fullCode) < 5 {
			continue
		}
		code := fullCode[:5]
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		districts = append(districts, DistrictCode{
			Code:   code,
			Name:   record["locatadd_nm"],
			SidoCd: record["sido_cd"],
			SggCd:  record["sgg_cd"],
		})
	}
	return districts, nil
}

// fetchPaginated walks pages until every record reported by totalCount
// has been collected or a page comes back empty.
func (c *OpenData) fetchPaginated(ctx context.Context, path string, params url.Values, onPage PageFunc) ([]map[string]string, error) {
	var all []map[string]string
	pageNo := 1

	for {
		page := url.Values{}
		for key, values := range params {
			for _, value := range values {
				page.Add(key, value)
			}
		}
		page.Set("pageNo", strconv.Itoa(pageNo))
		page.Set("numOfRows", strconv.Itoa(c.pageSize))

		body, err := c.get(ctx, path, page)
		if err != nil {
			return nil, err
		}

		records, totalCount, err := parseItems(body)
		if err != nil {
			return nil, err
		}
		all = append(all, records...)

		c.logger.Debugw("Fetched page",
			"path", path,
			"page_no", pageNo,
			"page_count", len(records),
			"total_count", totalCount,
		)
		if onPage != nil {
			onPage(pageNo, len(records), totalCount)
		}

		if len(all) >= totalCount || len(records) == 0 {
			break
		}
		pageNo++
	}

	return all, nil
}

// get performs one GET against the portal with the service key attached.
func (c *OpenData) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	query := url.Values{}
	query.Set("serviceKey", c.serviceKey)
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

type envelope struct {
	Header *envelopeHeader `xml:"header"`
	Body   envelopeBody    `xml:"body"`
}

type envelopeHeader struct {
	ResultCode string `xml:"resultCode"`
	ResultMsg  string `xml:"resultMsg"`
}

type envelopeBody struct {
	TotalCount int       `xml:"totalCount"`
	Items      []xmlItem `xml:"items>item"`
}

type xmlItem struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parseItems decodes one portal response. A missing header is tolerated;
// a present header must carry a success result code.
func parseItems(body []byte) ([]map[string]string, int, error) {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, 0, errors.Wrap(err, "failed to parse XML response")
	}

	if env.Header != nil {
		if code := env.Header.ResultCode; code != "00" && code != "000" {
			return nil, 0, &APIError{Code: code, Message: env.Header.ResultMsg}
		}
	}

	records := make([]map[string]string, 0, len(env.Body.Items))
	for _, item := range env.Body.Items {
		record := make(map[string]string, len(item.Fields))
		for _, field := range item.Fields {
			record[strings.TrimSpace(field.XMLName.Local)] = strings.TrimSpace(field.Value)
		}
		if len(record) > 0 {
			records = append(records, record)
		}
	}
	return records, env.Body.TotalCount, nil
}
