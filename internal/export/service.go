package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/faxintake/constants"
	"github.com/joseph-ayodele/faxintake/internal/entity"
	"github.com/joseph-ayodele/faxintake/internal/repository"
)

const sheet = "Authorizations"

// maxRows guards the workbook size; excelize tops out near 1M rows per sheet.
const maxRows = 100_000

var headers = []string{
	"Record ID",
	"Status",
	"Source Path",
	"File Name",
	"Uploaded At",
	"Processed At",
	"Patient Name",
	"Patient DOB",
	"Provider Name",
	"Provider NPI",
	"CPT Codes",
	"ICD-10 Codes",
	"Service Start",
	"Service End",
	"Authorization #",
	"Urgency",
	"Error",
}

// Service produces XLSX workbooks of authorization records.
type Service struct {
	repo   repository.AuthorizationRepository
	logger *zap.Logger
}

func NewService(repo repository.AuthorizationRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, logger: logger}
}

// AuthorizationsXLSX returns the workbook bytes for every record with status, or all records when status is empty.
func (s *Service) AuthorizationsXLSX(ctx context.Context, status constants.AuthorizationStatus) ([]byte, error) {
	start := time.Now()

	var recs []*entity.AuthorizationRecord
	for offset := 0; offset < maxRows; offset += repository.DefaultListLimit {
		page, err := s.repo.List(ctx, repository.ListFilter{Status: status, Limit: repository.DefaultListLimit, Offset: offset})
		if err != nil {
			return nil, fmt.Errorf("list authorizations: %w", err)
		}
		recs = append(recs, page...)
		if len(page) < repository.DefaultListLimit {
			break
		}
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range recs {
		row := i + 2
		for col, v := range rowValues(r) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 38) // id
	_ = f.SetColWidth(sheet, "C", "D", 32) // paths
	_ = f.SetColWidth(sheet, "E", "F", 22) // timestamps
	_ = f.SetColWidth(sheet, "G", "J", 20)
	_ = f.SetColWidth(sheet, "Q", "Q", 60) // error
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		zap.String("status", string(status)),
		zap.Int("rows", len(recs)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return buf.Bytes(), nil
}

func rowValues(r *entity.AuthorizationRecord) []any {
	vals := []any{
		r.ID,
		string(r.Status),
		r.SourcePath,
		r.FileName,
		r.UploadedAt.UTC().Format(time.RFC3339),
		"",
		"", "", "", "", "", "", "", "", "", "",
		"",
	}
	if r.ProcessedAt != nil {
		vals[5] = r.ProcessedAt.UTC().Format(time.RFC3339)
	}
	if f := r.ExtractedFields; f != nil {
		vals[6] = str(f.PatientName)
		vals[7] = date(f.PatientDateOfBirth)
		vals[8] = str(f.ProviderName)
		vals[9] = str(f.ProviderNPI)
		vals[10] = strings.Join(f.CPTCodes, ", ")
		vals[11] = strings.Join(f.ICD10Codes, ", ")
		vals[12] = date(f.ServiceStartDate)
		vals[13] = date(f.ServiceEndDate)
		vals[14] = str(f.AuthorizationNumber)
		vals[15] = str(f.Urgency)
	}
	if r.ErrorMessage != nil {
		vals[16] = truncate(*r.ErrorMessage, 500)
	}
	return vals
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func date(d *entity.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
