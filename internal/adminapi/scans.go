package adminapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
)

type scanPayload struct {
	BatchID    int64  `json:"medicine_id,string" validate:"required"`
	UnitID     *int64 `json:"unit_id,string,omitempty"`
	Result     string `json:"verification_result" validate:"required,oneof=genuine counterfeit"`
	Location   string `json:"location" validate:"omitempty,max=200"`
	DeviceInfo string `json:"device_info" validate:"omitempty,max=500"`
}

// scanCSVRow one exported line of the scan history
type scanCSVRow struct {
	ID              string `csv:"id"`
	BatchID         string `csv:"medicine_id"`
	UnitID          string `csv:"unit_id"`
	TokenID         string `csv:"token_id"`
	ContractAddress string `csv:"contract_address"`
	UserID          string `csv:"user_id"`
	Result          string `csv:"verification_result"`
	Location        string `csv:"location"`
	DeviceInfo      string `csv:"device_info"`
	IPAddress       string `csv:"ip_address"`
	CreatedAt       string `csv:"created_at"`
}

func registerScanRoutes() {
	webserver.ApiPOST("/scans", recordScan)
	webserver.ApiGET("/scans/mine", listMyScans)
	webserver.ApiGET("/scans/export", exportScans)
}

func recordScan(c echo.Context) error {
	var payload scanPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse scan parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	rec, err := GetAppContext(c).Store().RecordManualScan(c.Request().Context(), currentActor(c), registry.ManualScan{
		BatchID:    payload.BatchID,
		UnitID:     payload.UnitID,
		Result:     payload.Result,
		Location:   payload.Location,
		DeviceInfo: common.IfEmptyStr(payload.DeviceInfo, c.Request().UserAgent()),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, rec)
}

func listMyScans(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	scans, err := GetAppContext(c).Store().ListUserScans(c.Request().Context(), currentActor(c), limit)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, scans)
}

func optionalID(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func toCSVRows(records []domain.ScanRecord) []*scanCSVRow {
	rows := make([]*scanCSVRow, 0, len(records))
	for _, r := range records {
		rows = append(rows, &scanCSVRow{
			ID:              strconv.FormatInt(r.ID, 10),
			BatchID:         strconv.FormatInt(r.BatchID, 10),
			UnitID:          optionalID(r.UnitID),
			TokenID:         r.TokenID,
			ContractAddress: r.ContractAddress,
			UserID:          optionalID(r.UserID),
			Result:          r.Result,
			Location:        r.Location,
			DeviceInfo:      r.DeviceInfo,
			IPAddress:       r.IPAddress,
			CreatedAt:       r.CreatedAt.Format(time.RFC3339),
		})
	}
	return rows
}

// exportScans downloads the scan history of the caller's batches as csv
func exportScans(c echo.Context) error {
	actor := currentActor(c)
	if !actor.Authenticated() {
		return failWith(c, domain.ErrUnauthenticated)
	}
	records, err := GetAppContext(c).Store().ListManufacturerScans(c.Request().Context(), actor)
	if err != nil {
		return failWith(c, err)
	}
	data, err := gocsv.MarshalBytes(toCSVRows(records))
	if err != nil {
		return failWith(c, err)
	}
	filename := fmt.Sprintf("scans-%s.csv", time.Now().Format("20060102150405"))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%s", filename))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", data)
}
