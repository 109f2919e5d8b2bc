package adminapi

import (
	"net/http"
	"strings"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/internal/registry"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

type batchPayload struct {
	TokenID           string          `json:"token_id" validate:"required,max=128"`
	MedicineName      string          `json:"medicine_name" validate:"required,max=200"`
	ManufacturerName  string          `json:"manufacturer_name" validate:"omitempty,max=200"`
	BatchNumber       string          `json:"batch_number" validate:"required,max=100"`
	MedicineType      string          `json:"medicine_type" validate:"required"`
	ManufacturingDate string          `json:"manufacturing_date" validate:"omitempty,max=32"`
	ExpiryDate        string          `json:"expiry_date" validate:"omitempty,max=32"`
	MRP               decimal.Decimal `json:"mrp"`
	Quantity          int             `json:"quantity" validate:"required,min=1"`
	QRPayload         string          `json:"qr_code_data" validate:"omitempty"`
	TransactionHash   string          `json:"transaction_hash" validate:"omitempty,max=66"`
	ContractAddress   string          `json:"contract_address" validate:"required"`
}

type activePayload struct {
	Active *bool `json:"active" validate:"required"`
}

// registerBatchRoutes registers medicine batch routes
func registerBatchRoutes() {
	webserver.ApiGET("/batches", listBatches)
	webserver.ApiPOST("/batches", createBatch)
	webserver.ApiGET("/batches/stats", batchStats)
	webserver.ApiGET("/batches/lookup", lookupBatch)
	webserver.ApiGET("/batches/:id", getBatch)
	webserver.ApiGET("/batches/:id/units", listBatchUnits)
	webserver.ApiGET("/batches/:id/scans/stats", batchScanStats)
	webserver.ApiPUT("/batches/:id/active", toggleBatch)
	webserver.ApiDELETE("/batches/:id", deleteBatch)
}

func listBatches(c echo.Context) error {
	batches, err := GetAppContext(c).Store().ListByManufacturer(c.Request().Context(), currentActor(c))
	if err != nil {
		return failWith(c, err)
	}
	page, pageSize := parsePagination(c, registry.ListLimit)
	start, end := pageOf(len(batches), page, pageSize)
	return paged(c, batches[start:end], int64(len(batches)), page, pageSize)
}

func createBatch(c echo.Context) error {
	var payload batchPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse batch parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	batch, err := GetAppContext(c).Store().CreateBatch(c.Request().Context(), currentActor(c), registry.BatchInput{
		TokenID:           payload.TokenID,
		MedicineName:      payload.MedicineName,
		ManufacturerName:  payload.ManufacturerName,
		BatchNumber:       payload.BatchNumber,
		MedicineType:      payload.MedicineType,
		ManufacturingDate: payload.ManufacturingDate,
		ExpiryDate:        payload.ExpiryDate,
		MRP:               payload.MRP,
		Quantity:          payload.Quantity,
		QRPayload:         payload.QRPayload,
		TransactionHash:   payload.TransactionHash,
		ContractAddress:   payload.ContractAddress,
	})
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, batch)
}

func batchStats(c echo.Context) error {
	stats, err := GetAppContext(c).Store().ComputeManufacturerStats(c.Request().Context(), currentActor(c))
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, stats)
}

// lookupBatch resolves ?token_id=, ?qr= or ?batch_number=
func lookupBatch(c echo.Context) error {
	ctx := c.Request().Context()
	store := GetAppContext(c).Store()

	if number := strings.TrimSpace(c.QueryParam("batch_number")); number != "" {
		batches, err := store.ListByBatchNumber(ctx, number)
		if err != nil {
			return failWith(c, err)
		}
		return ok(c, batches)
	}

	var (
		view *domain.BatchView
		err  error
	)
	if qr := c.QueryParam("qr"); strings.TrimSpace(qr) != "" {
		view, err = store.GetByQRPayload(ctx, qr)
	} else if tokenID := strings.TrimSpace(c.QueryParam("token_id")); tokenID != "" {
		if identity.IsUnitID(tokenID) {
			view, err = store.GetUnitWithBatch(ctx, tokenID)
		} else {
			var batch *domain.Batch
			batch, err = store.GetBatchByTokenID(ctx, tokenID)
			if batch != nil {
				view = &domain.BatchView{Batch: *batch}
			}
		}
	} else {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "One of token_id, qr or batch_number is required", nil)
	}
	if err != nil {
		return failWith(c, err)
	}
	if view == nil {
		return fail(c, http.StatusNotFound, "BATCH_NOT_FOUND", "Medicine batch not found", nil)
	}
	return ok(c, view)
}

func getBatch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
	}
	batch, err := GetAppContext(c).Store().GetBatch(c.Request().Context(), id)
	if err != nil {
		return failWith(c, err)
	}
	if batch == nil {
		return fail(c, http.StatusNotFound, "BATCH_NOT_FOUND", "Medicine batch not found", nil)
	}
	return ok(c, batch)
}

func listBatchUnits(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
	}
	units, err := GetAppContext(c).Store().ListUnits(c.Request().Context(), id)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, units)
}

func batchScanStats(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
	}
	stats, err := GetAppContext(c).Store().BatchScanStats(c.Request().Context(), id)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, stats)
}

func toggleBatch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
	}
	var payload activePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse batch parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	batch, err := GetAppContext(c).Store().ToggleActive(c.Request().Context(), currentActor(c), id, *payload.Active)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, batch)
}

func deleteBatch(c echo.Context) error {
	id, err := parseIDParam(c, "id")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_ID", "Invalid batch ID", nil)
	}
	if err := GetAppContext(c).Store().DeleteBatch(c.Request().Context(), currentActor(c), id); err != nil {
		return failWith(c, err)
	}
	return ok(c, map[string]interface{}{"id": id})
}
