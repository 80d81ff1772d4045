package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

// DefaultPageSize is the largest page the rows endpoint serves.
const DefaultPageSize = 100

// DatasetClient fetches hosted datasets split by split.
type DatasetClient struct {
	client   *resty.Client
	logger   *zap.Logger
	pageSize int
}

// NewDatasetClient creates a client for a datasets-server compatible API.
func NewDatasetClient(cfg Config, logger *zap.Logger) *DatasetClient {
	return &DatasetClient{
		client:   newRestyClient(cfg).SetHeader("Accept", "application/json"),
		logger:   nopIfNil(logger),
		pageSize: DefaultPageSize,
	}
}

// SetPageSize overrides the number of rows requested per page.
func (c *DatasetClient) SetPageSize(n int) *DatasetClient {
	if n > 0 {
		c.pageSize = n
	}
	return c
}

// SplitInfo identifies one split of a dataset config.
type SplitInfo struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}

type splitsResponse struct {
	Splits []SplitInfo `json:"splits"`
}

// Feature describes one column as reported by the rows endpoint.
type Feature struct {
	Index int            `json:"feature_idx"`
	Name  string         `json:"name"`
	Type  map[string]any `json:"type"`
}

type rowsPage struct {
	Features []Feature `json:"features"`
	Rows     []struct {
		RowIdx int            `json:"row_idx"`
		Row    map[string]any `json:"row"`
	} `json:"rows"`
	NumRowsTotal int  `json:"num_rows_total"`
	Partial      bool `json:"partial"`
}

// Splits lists the splits the hub knows for a dataset.
func (c *DatasetClient) Splits(ctx context.Context, name string) ([]SplitInfo, error) {
	var result splitsResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("dataset", name).
		Get("/splits")
	if err != nil {
		return nil, fmt.Errorf("failed to list splits of %s: %w", name, err)
	}
	if resp.IsError() {
		return nil, statusError("list splits of "+name, resp)
	}
	if err := json.Unmarshal(resp.Body(), &result); err != nil {
		return nil, fmt.Errorf("failed to decode splits of %s: %w", name, err)
	}
	return result.Splits, nil
}

// Rows fetches every row of one split, page by page, in row order.
func (c *DatasetClient) Rows(ctx context.Context, name, config, split string) ([]Feature, []map[string]any, error) {
	var (
		features []Feature
		rows     []map[string]any
		total    = -1
	)

	for offset := 0; total < 0 || offset < total; {
		resp, err := c.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"dataset": name,
				"config":  config,
				"split":   split,
				"offset":  strconv.Itoa(offset),
				"length":  strconv.Itoa(c.pageSize),
			}).
			Get("/rows")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to fetch %s/%s rows at offset %d: %w", name, split, offset, err)
		}
		if resp.IsError() {
			return nil, nil, statusError(fmt.Sprintf("fetch %s/%s rows", name, split), resp)
		}

		var page rowsPage
		dec := json.NewDecoder(bytes.NewReader(resp.Body()))
		dec.UseNumber()
		if err := dec.Decode(&page); err != nil {
			return nil, nil, fmt.Errorf("failed to decode %s/%s rows page: %w", name, split, err)
		}

		if features == nil {
			features = page.Features
		}
		total = page.NumRowsTotal
		if len(page.Rows) == 0 {
			break
		}
		for _, r := range page.Rows {
			rows = append(rows, r.Row)
		}
		offset += len(page.Rows)

		c.logger.Debug("fetched rows page",
			zap.String("dataset", name),
			zap.String("split", split),
			zap.Int("offset", offset),
			zap.Int("total", total))
	}

	if total >= 0 && len(rows) != total {
		return nil, nil, fmt.Errorf("fetch %s/%s: got %d rows, hub reported %d", name, split, len(rows), total)
	}
	return features, rows, nil
}

// LoadDataset downloads the named splits, ordered as the hub lists the
// features. Integer Value features become int64 columns, everything else is
// kept as strings.
func (c *DatasetClient) LoadDataset(ctx context.Context, name, config string, splits []string) (*dataset.Dict, error) {
	out := make([]*dataset.Split, 0, len(splits))
	for _, splitName := range splits {
		features, rows, err := c.Rows(ctx, name, config, splitName)
		if err != nil {
			return nil, err
		}

		split := dataset.NewSplit(splitName)
		for _, f := range features {
			if err := addFeatureColumn(split, f, rows); err != nil {
				return nil, fmt.Errorf("split %s: %w", splitName, err)
			}
		}

		c.logger.Info("loaded split",
			zap.String("dataset", name),
			zap.String("split", splitName),
			zap.Int("rows", split.NumRows()),
			zap.Strings("columns", split.Columns()))
		out = append(out, split)
	}
	return dataset.NewDict(out...)
}

// Dtype returns the Value dtype of a feature, or "" for other feature types.
func (f Feature) Dtype() string {
	if t, _ := f.Type["_type"].(string); t != "Value" {
		return ""
	}
	d, _ := f.Type["dtype"].(string)
	return d
}

// IsInteger reports whether the feature holds integers that fit in an int64.
func (f Feature) IsInteger() bool {
	switch f.Dtype() {
	case "int8", "int16", "int32", "int64", "uint8", "uint16", "uint32":
		return true
	}
	return false
}

func addFeatureColumn(split *dataset.Split, f Feature, rows []map[string]any) error {
	if !f.IsInteger() {
		values := make([]string, len(rows))
		for i, row := range rows {
			values[i] = stringify(row[f.Name])
		}
		return split.AddStringColumn(f.Name, values)
	}

	values := make([]int64, len(rows))
	for i, row := range rows {
		n, ok := row[f.Name].(json.Number)
		if !ok {
			return fmt.Errorf("column %s row %d: expected %s, got %T", f.Name, i, f.Dtype(), row[f.Name])
		}
		v, err := n.Int64()
		if err != nil {
			return fmt.Errorf("column %s row %d: %w", f.Name, i, err)
		}
		values[i] = v
	}
	return split.AddInt64Column(f.Name, values)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
