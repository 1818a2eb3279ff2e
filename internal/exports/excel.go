package exports

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"termin/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Appointments"

// Exporter writes appointment listings to XLSX files for the admin surface.
type Exporter struct {
	path   string
	logger *zerolog.Logger
}

func NewExporter(path string, logger *zerolog.Logger) *Exporter {
	return &Exporter{path: path, logger: logger}
}

// AppointmentsToExcel writes all appointments to a timestamped XLSX file and
// returns its path.
func (e *Exporter) AppointmentsToExcel(appts []*models.Appointment) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %v", err)
	}
	f.SetActiveSheet(index)

	headers := []string{
		"ID", "Status", "Name", "Email", "Phone", "Company", "Service",
		"Date", "Time", "Meeting", "Sync", "Notes", "Created",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, appt := range appts {
		row := i + 2
		values := []interface{}{
			appt.ID,
			appt.Status,
			appt.Name,
			appt.Email,
			appt.Phone,
			appt.Company,
			appt.Service,
			appt.Date,
			appt.Time,
			appt.ZoomJoinURL,
			syncSummary(appt),
			notesSummary(appt),
			appt.CreatedAt.Format("02.01.2006 15:04"),
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}

		if styleID, err := statusStyle(f, appt.Status); err == nil {
			first, _ := excelize.CoordinatesToCellName(1, row)
			last, _ := excelize.CoordinatesToCellName(len(values), row)
			_ = f.SetCellStyle(sheetName, first, last, styleID)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 36)
	_ = f.SetColWidth(sheetName, "B", "B", 12)
	_ = f.SetColWidth(sheetName, "C", "D", 24)
	_ = f.SetColWidth(sheetName, "E", "G", 18)
	_ = f.SetColWidth(sheetName, "H", "I", 12)
	_ = f.SetColWidth(sheetName, "J", "J", 32)
	_ = f.SetColWidth(sheetName, "K", "K", 16)
	_ = f.SetColWidth(sheetName, "L", "L", 40)
	_ = f.SetColWidth(sheetName, "M", "M", 18)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("appointments_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)

	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("appointments", len(appts)).Msg("excel export created")
	return filePath, nil
}

func syncSummary(appt *models.Appointment) string {
	if appt.Degraded() {
		var parts []string
		if appt.CalendarSyncStatus == models.SyncFailed {
			parts = append(parts, "calendar")
		}
		if appt.MeetingSyncStatus == models.SyncFailed {
			parts = append(parts, "meeting")
		}
		return "failed: " + strings.Join(parts, ", ")
	}
	return "ok"
}

func notesSummary(appt *models.Appointment) string {
	var lines []string
	for _, note := range appt.AdminNotes {
		lines = append(lines, fmt.Sprintf("[%s] %s", note.Timestamp.Format("02.01 15:04"), note.Note))
	}
	return strings.Join(lines, "\n")
}

func statusStyle(f *excelize.File, status string) (int, error) {
	var color string
	switch status {
	case models.StatusConfirmed, models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusRescheduled, models.StatusInProgress:
		color = "#FFEB9C"
	case models.StatusCancelled:
		color = "#FFC7CE"
	default:
		color = "#FFFFFF"
	}

	return f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
}
