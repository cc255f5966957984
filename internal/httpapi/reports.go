package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/border"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/xuri/excelize/v2"

	"dispatch/internal/domain"
	"dispatch/internal/store"
	"dispatch/pkg/apperror"
)

// Report styling, carried over from the teacher's report-svc generator.
var (
	primaryColor   = &props.Color{Red: 52, Green: 152, Blue: 219}
	headerBgColor  = &props.Color{Red: 44, Green: 62, Blue: 80}
	lightGrayColor = &props.Color{Red: 236, Green: 240, Blue: 241}
	darkGrayColor  = &props.Color{Red: 127, Green: 140, Blue: 141}

	titleStyle = props.Text{Size: 24, Style: fontstyle.Bold, Align: align.Center, Color: headerBgColor}
	h2Style    = props.Text{Size: 16, Style: fontstyle.Bold, Color: headerBgColor, Top: 5}
	normalStyle = props.Text{Size: 10}
	boldStyle   = props.Text{Size: 10, Style: fontstyle.Bold}
	smallStyle  = props.Text{Size: 8, Color: darkGrayColor}

	tableHeaderStyle = &props.Cell{BackgroundColor: primaryColor}
	tableHeaderTextStyle = props.Text{
		Size: 9, Style: fontstyle.Bold, Color: &props.Color{Red: 255, Green: 255, Blue: 255}, Align: align.Center,
	}
	tableCellStyle     = &props.Cell{BorderType: border.Bottom, BorderColor: lightGrayColor}
	tableCellTextStyle = props.Text{Size: 9, Align: align.Center}
)

// handleRouteManifestPDF renders a single route's stop sequence as a
// printable driver manifest. Supplemented surface: the distilled external
// interface list scoped to illustrative JSON endpoints only, but the
// original reporting service always shipped a document export alongside
// its JSON API.
func (a *API) handleRouteManifestPDF(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ctx := r.Context()

	route, err := a.Store.GetRoute(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}
	stops, err := a.Store.GetStops(ctx, id)
	if err != nil {
		writeError(w, err)
		return
	}

	cfg := config.NewBuilder().
		WithPageNumber().
		WithLeftMargin(15).
		WithTopMargin(15).
		WithRightMargin(15).
		Build()
	m := maroto.New(cfg)

	addManifestHeader(m, route)
	addManifestSummary(m, route, stops)
	addManifestStopsTable(m, stops)
	addManifestFooter(m)

	doc, err := m.Generate()
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "failed to render manifest"))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=route-%s-manifest.pdf", route.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.GetBytes())
}

func addManifestHeader(m core.Maroto, route domain.Route) {
	m.AddRow(15, text.NewCol(12, fmt.Sprintf("Route Manifest — %s", route.ID), titleStyle))
	m.AddRow(5, line.NewCol(12))
	m.AddRow(6,
		text.NewCol(6, fmt.Sprintf("Vehicle: %s   Driver: %s", route.VehicleID, route.DriverID), smallStyle),
		text.NewCol(6, fmt.Sprintf("Generated: %s", time.Now().Format("2006-01-02 15:04:05")),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Right}),
	)
	m.AddRow(8)
}

func addManifestSummary(m core.Maroto, route domain.Route, stops []domain.Stop) {
	m.AddRow(10, text.NewCol(12, "Summary", h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))
	m.AddRow(5)

	m.AddRow(6,
		text.NewCol(6, "Planned date", boldStyle),
		text.NewCol(6, route.PlannedDate.Format("2006-01-02"), normalStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Status", boldStyle),
		text.NewCol(6, string(route.Status), normalStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Stops", boldStyle),
		text.NewCol(6, fmt.Sprintf("%d", len(stops)), normalStyle),
	)
	m.AddRow(6,
		text.NewCol(6, "Total distance", boldStyle),
		text.NewCol(6, fmt.Sprintf("%.2f km", route.Totals.DistanceKM), normalStyle),
	)
	m.AddRow(8)
}

func addManifestStopsTable(m core.Maroto, stops []domain.Stop) {
	m.AddRow(10, text.NewCol(12, "Stops", h2Style))
	m.AddRow(2, line.NewCol(12, props.Line{Color: primaryColor}))

	m.AddRow(8,
		text.NewCol(1, "#", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(3, "Order", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(3, "Arrival", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(3, "Departure", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
		text.NewCol(2, "Status", tableHeaderTextStyle).WithStyle(tableHeaderStyle),
	)

	for _, stop := range stops {
		orderID := "—"
		if stop.OrderID != nil {
			orderID = *stop.OrderID
		}
		m.AddRow(7,
			text.NewCol(1, fmt.Sprintf("%d", stop.Sequence), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, orderID, tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, stop.PlannedArrival.Format("15:04"), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(3, stop.PlannedDeparture.Format("15:04"), tableCellTextStyle).WithStyle(tableCellStyle),
			text.NewCol(2, string(stop.Status), tableCellTextStyle).WithStyle(tableCellStyle),
		)
	}
	m.AddRow(8)
}

func addManifestFooter(m core.Maroto) {
	m.AddRow(10)
	m.AddRow(2, line.NewCol(12, props.Line{Color: lightGrayColor}))
	m.AddRow(6,
		text.NewCol(12,
			fmt.Sprintf("Generated by the dispatch service | %s", time.Now().Format("2006-01-02 15:04:05")),
			props.Text{Size: 8, Color: darkGrayColor, Align: align.Center},
		),
	)
}

// handleRoutesExportXLSX exports the day's routes (optionally filtered by
// date/status as in GET /routes) as a workbook with one summary sheet and
// one stops sheet, for dispatchers who archive plans outside the system.
func (a *API) handleRoutesExportXLSX(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.RouteFilter{
		VehicleID: q.Get("vehicle_id"),
		DriverID:  q.Get("driver_id"),
	}
	if status := q.Get("status"); status != "" {
		s := domain.RouteStatus(status)
		filter.Status = &s
	}
	if date := q.Get("date"); date != "" {
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeError(w, apperror.NewWithField(apperror.CodeInvalidInput, "date must be YYYY-MM-DD", "date"))
			return
		}
		filter.Date = &t
	}

	ctx := r.Context()
	routes, err := a.Store.ListRoutes(ctx, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const summarySheet = "Routes"
	const stopsSheet = "Stops"
	f.SetSheetName(f.GetSheetName(0), summarySheet)
	f.NewSheet(stopsSheet)

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "failed to build workbook style"))
		return
	}

	summaryHeaders := []string{"Route ID", "Vehicle", "Driver", "Planned Date", "Status", "Stops", "Distance (km)", "Reoptimizations"}
	for i, h := range summaryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(summarySheet, cell, h)
		f.SetCellStyle(summarySheet, cell, cell, headerStyle)
	}

	stopsHeaders := []string{"Route ID", "Sequence", "Order ID", "Planned Arrival", "Planned Departure", "Status"}
	for i, h := range stopsHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(stopsSheet, cell, h)
		f.SetCellStyle(stopsSheet, cell, cell, headerStyle)
	}

	summaryRow := 2
	stopsRow := 2
	for _, route := range routes {
		stops, err := a.Store.GetStops(ctx, route.ID)
		if err != nil {
			writeError(w, err)
			return
		}

		f.SetSheetRow(summarySheet, fmt.Sprintf("A%d", summaryRow), &[]any{
			route.ID, route.VehicleID, route.DriverID, route.PlannedDate.Format("2006-01-02"),
			string(route.Status), len(stops), route.Totals.DistanceKM, route.ReoptimizationCount,
		})
		summaryRow++

		for _, stop := range stops {
			orderID := ""
			if stop.OrderID != nil {
				orderID = *stop.OrderID
			}
			f.SetSheetRow(stopsSheet, fmt.Sprintf("A%d", stopsRow), &[]any{
				route.ID, stop.Sequence, orderID,
				stop.PlannedArrival.Format("2006-01-02 15:04"), stop.PlannedDeparture.Format("2006-01-02 15:04"),
				string(stop.Status),
			})
			stopsRow++
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		writeError(w, apperror.Wrap(err, apperror.CodeInternal, "failed to write workbook"))
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=routes-export.xlsx")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
