package analytics

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

var exportHeader = []string{
	"id", "timestamp", "session_id", "question", "matched_category", "fallback_reason",
	"model_used", "latency_ms", "docs_retrieved", "answer_length", "completed", "error",
}

func exportRow(ev Event) []string {
	return []string{
		ev.ID,
		ev.Timestamp.UTC().Format(time.RFC3339),
		ev.SessionID,
		ev.Question,
		ev.MatchedCategory,
		string(ev.FallbackReason),
		ev.ModelUsed,
		strconv.FormatInt(ev.LatencyMS, 10),
		strconv.Itoa(ev.DocsRetrieved),
		strconv.Itoa(ev.AnswerLength),
		strconv.FormatBool(ev.Completed),
		ev.Error,
	}
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "application/json"
}

// Export writes events to w in the given format.
func Export(w io.Writer, events []Event, format string) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if events == nil {
			events = []Event{}
		}
		return enc.Encode(events)
	case FormatCSV:
		return exportCSV(w, events)
	case FormatXLSX:
		return exportXLSX(w, events)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func exportCSV(w io.Writer, events []Event) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, ev := range events {
		if err := cw.Write(exportRow(ev)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func exportXLSX(w io.Writer, events []Event) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "events"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	writeRow := func(row int, values []string) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		cells := make([]any, len(values))
		for i, v := range values {
			cells[i] = v
		}
		return f.SetSheetRow(sheet, cell, &cells)
	}

	if err := writeRow(1, exportHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, ev := range events {
		if err := writeRow(i+2, exportRow(ev)); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	return f.Write(w)
}
