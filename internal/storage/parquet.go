package storage

import (
	"encoding/json"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/YashRaj5/insurance-nlp/internal/dataset"
)

const parquetParallelism = 4

type schemaNode struct {
	Tag    string       `json:"Tag"`
	Fields []schemaNode `json:"Fields,omitempty"`
}

// parquetSchema renders the JSON schema parquet-go expects for a split:
// string columns are UTF8 byte arrays, int64 columns and class-label codes are INT64.
func parquetSchema(info SplitInfo) (string, error) {
	root := schemaNode{Tag: "name=parquet_go_root, repetitiontype=REQUIRED"}
	for _, c := range info.Columns {
		switch {
		case c.Feature.Type == featureValue && c.Feature.Dtype == dtypeInt64:
			root.Fields = append(root.Fields, schemaNode{
				Tag: fmt.Sprintf("name=%s, type=INT64, repetitiontype=REQUIRED", c.Name),
			})
		case c.Feature.Type == featureValue && (c.Feature.Dtype == dtypeString || c.Feature.Dtype == ""):
			root.Fields = append(root.Fields, schemaNode{
				Tag: fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED", c.Name),
			})
		case c.Feature.Type == featureClassLabel:
			root.Fields = append(root.Fields, schemaNode{
				Tag: fmt.Sprintf("name=%s, type=INT64, repetitiontype=REQUIRED", c.Name),
			})
		default:
			return "", fmt.Errorf("column %s: unsupported feature %s(%s)", c.Name, c.Feature.Type, c.Feature.Dtype)
		}
	}
	b, err := json.Marshal(root)
	return string(b), err
}

func writeParquet(path string, s *dataset.Split, info SplitInfo) error {
	schema, err := parquetSchema(info)
	if err != nil {
		return err
	}

	// column-major -> row-major
	strs := make(map[string][]string, len(info.Columns))
	codes := make(map[string][]int, len(info.Columns))
	ints := make(map[string][]int64, len(info.Columns))
	for _, c := range info.Columns {
		if c.Feature.Type == featureClassLabel {
			if codes[c.Name], err = s.Codes(c.Name); err != nil {
				return err
			}
			continue
		}
		if c.Feature.Dtype == dtypeInt64 {
			if ints[c.Name], err = s.Int64s(c.Name); err != nil {
				return err
			}
			continue
		}
		if strs[c.Name], err = s.Strings(c.Name); err != nil {
			return err
		}
	}

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	jw, err := writer.NewJSONWriter(schema, fw, parquetParallelism)
	if err != nil {
		fw.Close()
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}
	jw.CompressionType = parquet.CompressionCodec_SNAPPY

	row := make(map[string]any, len(info.Columns))
	for i := 0; i < info.NumRows; i++ {
		for _, c := range info.Columns {
			switch {
			case c.Feature.Type == featureClassLabel:
				row[c.Name] = codes[c.Name][i]
			case c.Feature.Dtype == dtypeInt64:
				row[c.Name] = ints[c.Name][i]
			default:
				row[c.Name] = strs[c.Name][i]
			}
		}
		rec, err := json.Marshal(row)
		if err != nil {
			fw.Close()
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if err := jw.Write(string(rec)); err != nil {
			fw.Close()
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := jw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("failed to finish parquet file: %w", err)
	}
	return fw.Close()
}

func readParquet(path, name string, info SplitInfo) (*dataset.Split, error) {
	split := dataset.NewSplit(name)

	if info.NumRows == 0 {
		for _, c := range info.Columns {
			if err := addColumn(split, c, nil); err != nil {
				return nil, err
			}
		}
		return split, nil
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetColumnReader(fr, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet column reader: %w", err)
	}
	defer pr.ReadStop()

	if n := int(pr.GetNumRows()); n != info.NumRows {
		return nil, fmt.Errorf("%s holds %d rows, dataset_info.json says %d", path, n, info.NumRows)
	}

	for i, c := range info.Columns {
		values, _, _, err := pr.ReadColumnByIndex(int64(i), int64(info.NumRows))
		if err != nil {
			return nil, fmt.Errorf("failed to read column %s: %w", c.Name, err)
		}
		if err := addColumn(split, c, values); err != nil {
			return nil, err
		}
	}
	return split, nil
}

func addColumn(split *dataset.Split, c ColumnInfo, values []any) error {
	feature, err := featureOf(c)
	if err != nil {
		return err
	}

	if feature == nil && c.Feature.Dtype == dtypeInt64 {
		out := make([]int64, len(values))
		for i, v := range values {
			switch t := v.(type) {
			case int64:
				out[i] = t
			case int32:
				out[i] = int64(t)
			default:
				return fmt.Errorf("column %s row %d: unexpected %T", c.Name, i, v)
			}
		}
		return split.AddInt64Column(c.Name, out)
	}

	if feature == nil {
		out := make([]string, len(values))
		for i, v := range values {
			switch t := v.(type) {
			case string:
				out[i] = t
			case []byte:
				out[i] = string(t)
			default:
				return fmt.Errorf("column %s row %d: unexpected %T", c.Name, i, v)
			}
		}
		return split.AddStringColumn(c.Name, out)
	}

	out := make([]int, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case int64:
			out[i] = int(t)
		case int32:
			out[i] = int(t)
		default:
			return fmt.Errorf("column %s row %d: unexpected %T", c.Name, i, v)
		}
	}
	return split.AddClassLabelColumn(c.Name, out, feature)
}
