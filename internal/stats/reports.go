package stats

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
)

var reportHeader = []string{"step", "game_win0", "game_win1", "game_tie", "game_total", "rew_shape"}

// ReportRow is one drained outcome report. Rates are zero when Total is zero.
type ReportRow struct {
	Step        int64   `json:"step"`
	Win0        float64 `json:"game_win0"`
	Win1        float64 `json:"game_win1"`
	Tie         float64 `json:"game_tie"`
	Total       int     `json:"game_total"`
	Coefficient float64 `json:"rew_shape"`
}

func WriteReports(runDir string, rows []ReportRow) error {
	file, err := os.Create(filepath.Join(runDir, reportsFile))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(reportHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			strconv.FormatInt(row.Step, 10),
			formatFloat(row.Win0),
			formatFloat(row.Win1),
			formatFloat(row.Tie),
			strconv.Itoa(row.Total),
			formatFloat(row.Coefficient),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func ReadReports(baseDir, runID string) ([]ReportRow, bool, error) {
	file, err := os.Open(filepath.Join(baseDir, runID, reportsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []ReportRow{}, true, nil
		}
		return nil, false, err
	}
	if len(header) != len(reportHeader) {
		return nil, false, fmt.Errorf("reports header must have %d columns, got %d", len(reportHeader), len(header))
	}

	rows := make([]ReportRow, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		row, err := parseReportRow(record)
		if err != nil {
			return nil, false, err
		}
		rows = append(rows, row)
	}
	return rows, true, nil
}

func parseReportRow(record []string) (ReportRow, error) {
	var (
		row ReportRow
		err error
	)
	if row.Step, err = strconv.ParseInt(record[0], 10, 64); err != nil {
		return ReportRow{}, fmt.Errorf("parse step: %w", err)
	}
	floatsIn := []*float64{&row.Win0, &row.Win1, &row.Tie}
	for i, dst := range floatsIn {
		if *dst, err = strconv.ParseFloat(record[i+1], 64); err != nil {
			return ReportRow{}, fmt.Errorf("parse %s: %w", reportHeader[i+1], err)
		}
	}
	if row.Total, err = strconv.Atoi(record[4]); err != nil {
		return ReportRow{}, fmt.Errorf("parse game_total: %w", err)
	}
	if row.Coefficient, err = strconv.ParseFloat(record[5], 64); err != nil {
		return ReportRow{}, fmt.Errorf("parse rew_shape: %w", err)
	}
	return row, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
