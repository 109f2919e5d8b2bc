package adminapi

import (
	"net/http"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/reporting"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/labstack/echo/v4"
)

type reportPayload struct {
	BatchID      *int64 `json:"medicine_id,string,omitempty"`
	QRPayload    string `json:"qr_code_data" validate:"omitempty"`
	MedicineName string `json:"medicine_name" validate:"omitempty,max=200"`
	BatchNumber  string `json:"batch_number" validate:"omitempty,max=100"`
	Reason       string `json:"reason" validate:"required,max=32"`
	Description  string `json:"description" validate:"omitempty,max=2000"`
	Location     string `json:"location" validate:"omitempty,max=200"`
}

type reportStatusPayload struct {
	Status string `json:"status" validate:"required,oneof=resolved dismissed"`
	Notes  string `json:"review_notes" validate:"omitempty,max=2000"`
}

func registerReportRoutes() {
	webserver.ApiPOST("/reports", submitReport)
	webserver.ApiGET("/reports/reasons", listReportReasons)
	webserver.ApiGET("/reports/public", listPublicReports)
	webserver.ApiGET("/reports/manufacturer", listManufacturerReports)
	webserver.ApiPUT("/reports/:id/status", updateReportStatus)
}

func submitReport(c echo.Context) error {
	var payload reportPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse report parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	report, err := GetAppContext(c).Reports().Submit(c.Request().Context(), currentActor(c), reporting.SubmitInput{
		BatchID:      payload.BatchID,
		QRPayload:    payload.QRPayload,
		MedicineName: payload.MedicineName,
		BatchNumber:  payload.BatchNumber,
		Reason:       payload.Reason,
		Description:  payload.Description,
		Location:     payload.Location,
	})
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, report)
}

func listReportReasons(c echo.Context) error {
	return ok(c, domain.ReportReasons)
}

func listPublicReports(c echo.Context) error {
	reports, err := GetAppContext(c).Reports().ListPublic(c.Request().Context())
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, reports)
}

func listManufacturerReports(c echo.Context) error {
	reports, err := GetAppContext(c).Reports().ListForManufacturer(c.Request().Context(), currentActor(c))
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, reports)
}

func updateReportStatus(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid report ID", nil)
	}
	var payload reportStatusPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse report parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	report, err := GetAppContext(c).Reports().UpdateStatus(c.Request().Context(), currentActor(c), id, payload.Status, payload.Notes)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, report)
}
