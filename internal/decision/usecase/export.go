package usecase

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"decisionlog-backend/internal/decision/domain"
)

const exportPageSize = 500

var csvHeader = []string{
	"id", "created_at", "decision_summary", "decision_maker", "witnesses", "decision_date",
	"topic", "priority", "decision_type", "status", "source", "confidence", "tags",
}

// ParseExportFormat maps a query parameter onto a format, csv by default.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (u *decisionUsecase) Export(ctx context.Context, viewer domain.Viewer, filter domain.ListFilter, format ExportFormat, w io.Writer) error {
	var write func(*domain.Decision) error
	var flush func() error

	switch format {
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		write = func(d *domain.Decision) error { return cw.Write(csvRecord(d)) }
		flush = func() error {
			cw.Flush()
			return cw.Error()
		}
	case FormatJSON:
		// Written as a JSON array one element at a time
		if _, err := io.WriteString(w, "["); err != nil {
			return err
		}
		first := true
		enc := json.NewEncoder(w)
		write = func(d *domain.Decision) error {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false
			return enc.Encode(d)
		}
		flush = func() error {
			_, err := io.WriteString(w, "]\n")
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	filter.Limit = exportPageSize
	filter.Offset = 0
	for {
		page, total, err := u.decisions.List(ctx, viewer, filter)
		if err != nil {
			return err
		}
		for _, d := range page {
			if err := write(d); err != nil {
				return err
			}
		}
		filter.Offset += len(page)
		if len(page) == 0 || int64(filter.Offset) >= total {
			break
		}
	}
	return flush()
}

func csvRecord(d *domain.Decision) []string {
	date := ""
	if d.DecisionDate != nil {
		date = d.DecisionDate.Format("2006-01-02")
	}
	return []string{
		d.ID,
		d.CreatedAt.UTC().Format(time.RFC3339),
		d.Summary,
		d.DecisionMaker,
		strings.Join(d.Witnesses, ";"),
		date,
		d.Topic,
		string(d.Priority),
		string(d.Type),
		string(d.Status),
		string(d.Source),
		strconv.Itoa(d.Confidence),
		strings.Join(d.TagNames(), ";"),
	}
}
