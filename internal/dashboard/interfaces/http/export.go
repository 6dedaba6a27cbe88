package http

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	dashboard "water-quality-cloud/internal/dashboard/domain"
)

// BuildSnapshotPDF renders a one-page PDF summary of a snapshot.
func BuildSnapshotPDF(snap dashboard.Snapshot) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Water Quality Dashboard")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Computed: %s", snap.ComputedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stations: %d", snap.TotalStations))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings: %d (%.2f per station)", snap.TotalReadings, snap.AvgReadingsPerStation))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reports: %d (%.2f per station)", snap.TotalReports, snap.AvgReportsPerStation))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts: %d active, %d resolved", snap.AlertStatusCounts.Active, snap.AlertStatusCounts.Resolved))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reports: %d pending, %d verified, %d rejected",
		snap.ReportStatusCounts.Pending, snap.ReportStatusCounts.Verified, snap.ReportStatusCounts.Rejected))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	for _, header := range []string{"Parameter", "Min", "Q1", "Median", "Q3", "Max", "Count"} {
		pdf.CellFormat(26, 6, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, key := range dashboard.BoxPlotParameters {
		stats, ok := snap.ParameterStats[key]
		if !ok {
			continue
		}
		pdf.CellFormat(26, 6, key, "1", 0, "L", false, 0, "")
		for _, v := range []float64{stats.Min, stats.Q1, stats.Median, stats.Q3, stats.Max} {
			pdf.CellFormat(26, 6, fmt.Sprintf("%.4f", v), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(26, 6, fmt.Sprintf("%d", stats.Count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, "Latest alerts")
	pdf.Ln(6)
	pdf.SetFont("Arial", "", 9)
	for _, alert := range snap.LatestAlerts {
		pdf.MultiCell(0, 5, fmt.Sprintf("[%s] %s - %s (%s)", alert.Severity, alert.Location, alert.Message,
			alert.IssuedAt.UTC().Format(time.RFC3339)), "", "L", false)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildSnapshotXLSX renders a workbook with summary, box plot and latest sheets.
func BuildSnapshotXLSX(snap dashboard.Snapshot) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	statsSheet := "parameters"
	alertsSheet := "latest_alerts"
	reportsSheet := "latest_reports"
	_ = f.SetSheetName("Sheet1", summarySheet)
	for _, sheet := range []string{statsSheet, alertsSheet, reportsSheet} {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}

	summary := [][2]any{
		{"Water Quality Dashboard", ""},
		{"Computed", snap.ComputedAt.UTC().Format(time.RFC3339)},
		{"Total Stations", snap.TotalStations},
		{"Total Readings", snap.TotalReadings},
		{"Total Reports", snap.TotalReports},
		{"Avg Readings per Station", snap.AvgReadingsPerStation},
		{"Avg Reports per Station", snap.AvgReportsPerStation},
		{"Active Alerts", snap.AlertStatusCounts.Active},
		{"Resolved Alerts", snap.AlertStatusCounts.Resolved},
		{"Pending Reports", snap.ReportStatusCounts.Pending},
		{"Verified Reports", snap.ReportStatusCounts.Verified},
		{"Rejected Reports", snap.ReportStatusCounts.Rejected},
	}
	for i, row := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), row[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), row[1])
	}

	_ = f.SetSheetRow(statsSheet, "A1", &[]any{"Parameter", "Min", "Q1", "Median", "Q3", "Max", "Count"})
	row := 2
	for _, key := range dashboard.BoxPlotParameters {
		stats, ok := snap.ParameterStats[key]
		if !ok {
			continue
		}
		_ = f.SetSheetRow(statsSheet, fmt.Sprintf("A%d", row),
			&[]any{key, stats.Min, stats.Q1, stats.Median, stats.Q3, stats.Max, stats.Count})
		row++
	}

	_ = f.SetSheetRow(alertsSheet, "A1", &[]any{"ID", "Type", "Severity", "Location", "Message", "Active", "Issued At"})
	for i, alert := range snap.LatestAlerts {
		_ = f.SetSheetRow(alertsSheet, fmt.Sprintf("A%d", i+2), &[]any{
			alert.ID, string(alert.Type), alert.Severity, alert.Location, alert.Message,
			alert.IsActive, alert.IssuedAt.UTC().Format(time.RFC3339),
		})
	}

	_ = f.SetSheetRow(reportsSheet, "A1", &[]any{"ID", "Location", "Water Source", "Station", "Status", "Created At"})
	for i, report := range snap.LatestReports {
		_ = f.SetSheetRow(reportsSheet, fmt.Sprintf("A%d", i+2), &[]any{
			report.ID, report.Location, report.WaterSource, report.StationName,
			string(report.Status), report.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
