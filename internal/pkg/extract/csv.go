package extract

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// csvText parses delimited tabular text with a header row and re-serializes
// each record as one JSON object per line. Chunks cut from the result stay
// self-describing: every row carries its column names.
func csvText(data []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return "", ErrEmptyExtraction
	}
	if err != nil {
		return "", fmt.Errorf("read csv header failed: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var b strings.Builder
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read csv record failed: %w", err)
		}

		row := make(map[string]string, len(header))
		for i, value := range record {
			key := fmt.Sprintf("column_%d", i+1)
			if i < len(header) && header[i] != "" {
				key = header[i]
			}
			row[key] = value
		}
		line, err := json.Marshal(row)
		if err != nil {
			return "", fmt.Errorf("serialize csv row failed: %w", err)
		}
		b.Write(line)
		b.WriteString("\n")
	}
	return b.String(), nil
}
