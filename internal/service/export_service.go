package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/citywatch/dispatch-api/internal/models"
	"github.com/citywatch/dispatch-api/pkg/config"
	appErrors "github.com/citywatch/dispatch-api/pkg/errors"
	"github.com/citywatch/dispatch-api/pkg/export"
)

// ExportFormat selects the rendered output type.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ExportResult is a rendered export ready to stream to the caller.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type assignmentLister interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentDetail, int, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportService renders assignment history as downloadable files.
type ExportService struct {
	assignments assignmentLister
	csv         csvRenderer
	pdf         pdfRenderer
	cfg         config.ExportsConfig
	logger      *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(assignments assignmentLister, cfg config.ExportsConfig, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = 5000
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		assignments: assignments,
		csv:         csv,
		pdf:         pdf,
		cfg:         cfg,
		logger:      logger,
	}
}

// ExportAssignments renders the assignments matching the filter.
func (s *ExportService) ExportAssignments(ctx context.Context, filter models.AssignmentFilter, format ExportFormat) (*ExportResult, error) {
	filter.Page = 1
	filter.PageSize = s.cfg.MaxRows

	rows, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments for export")
	}
	if total > len(rows) {
		s.logger.Warn("export truncated", zap.Int("total", total), zap.Int("exported", len(rows)))
	}

	dataset := buildAssignmentDataset(rows)

	var payload []byte
	var contentType string
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Assignment Report")
		contentType = "application/pdf"
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	return &ExportResult{
		Filename:    fmt.Sprintf("assignments_%s.%s", timestamp, format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

func buildAssignmentDataset(rows []models.AssignmentDetail) export.Dataset {
	headers := []string{"Assignment ID", "Report", "Priority", "Officer", "Badge", "Status", "Assigned At", "Completed At"}
	dataRows := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		badge := ""
		if row.OfficerBadge != nil {
			badge = *row.OfficerBadge
		}
		completed := ""
		if row.CompletedAt != nil {
			completed = row.CompletedAt.UTC().Format(time.RFC3339)
		}
		dataRows = append(dataRows, map[string]string{
			"Assignment ID": row.ID,
			"Report":        row.ReportTitle,
			"Priority":      string(row.ReportPriority),
			"Officer":       row.OfficerName,
			"Badge":         badge,
			"Status":        string(row.Status),
			"Assigned At":   row.AssignedAt.UTC().Format(time.RFC3339),
			"Completed At":  completed,
		})
	}
	return export.Dataset{Headers: headers, Rows: dataRows}
}

// ParseExportFormat normalizes a user-supplied format string.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "csv":
		return ExportFormatCSV, nil
	case "pdf":
		return ExportFormatPDF, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}
