package adminapi

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dhanvantari/pharmaauth/internal/app"
	"github.com/dhanvantari/pharmaauth/internal/chain"
	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Response single object envelope
type Response struct {
	Data interface{} `json:"data"`
}

// ListResponse list envelope with paging meta
type ListResponse struct {
	Data interface{} `json:"data"`
	Meta *Meta       `json:"meta,omitempty"`
}

type Meta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

var registerOnce sync.Once

// Init registers every api route with the webserver
func Init() {
	registerOnce.Do(func() {
		registerAuthRoutes()
		registerVerifyRoutes()
		registerBatchRoutes()
		registerScanRoutes()
		registerReportRoutes()
		registerSystemRoutes()
	})
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Data: data})
}

func paged(c echo.Context, data interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, ListResponse{
		Data: data,
		Meta: &Meta{Total: total, Page: page, PageSize: pageSize},
	})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Error: code, Message: message, Details: details})
}

// failWith maps service errors to http responses
func failWith(c echo.Context, err error) error {
	var addrErr *identity.AddressError
	switch {
	case errors.As(err, &addrErr):
		return fail(c, http.StatusBadRequest, "INVALID_ADDRESS", addrErr.Error(), map[string]string{
			"kind":  string(addrErr.Kind),
			"input": addrErr.Input,
		})
	case errors.Is(err, domain.ErrUnauthenticated):
		return fail(c, http.StatusUnauthorized, "UNAUTHENTICATED", "Authentication required", nil)
	case errors.Is(err, domain.ErrUnauthorized):
		return fail(c, http.StatusForbidden, "FORBIDDEN", "Access denied", nil)
	case errors.Is(err, domain.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, domain.ErrConflict):
		return fail(c, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		return fail(c, http.StatusConflict, "INVALID_TRANSITION", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidInput):
		return fail(c, http.StatusBadRequest, "INVALID_INPUT", err.Error(), nil)
	}
	zap.L().Error("request failed", zap.String("namespace", "api"),
		zap.String("path", c.Path()), zap.Error(err))
	return fail(c, http.StatusServiceUnavailable, "TEMPORARILY_UNAVAILABLE", "Temporarily unavailable, try again later", nil)
}

func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fe.Tag()
		}
		return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", fields)
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}

// parsePagination reads ?page= and ?pageSize=, pageSize falls back to defaultSize
func parsePagination(c echo.Context, defaultSize int) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = defaultSize
	}
	return page, pageSize
}

// pageOf the [start, end) window of one page over n items
func pageOf(n, page, pageSize int) (int, int) {
	start := (page - 1) * pageSize
	if start > n {
		start = n
	}
	end := start + pageSize
	if end > n {
		end = n
	}
	return start, end
}

func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB().WithContext(c.Request().Context())
}

func currentActor(c echo.Context) domain.Actor {
	return webserver.CurrentActor(c)
}

// chainAvailable reports whether any chain endpoint answers
func chainAvailable(c echo.Context) (int64, string, error) {
	adapter := GetAppContext(c).Chain()
	if adapter == nil {
		return 0, "", chain.ErrNoProvider
	}
	return adapter.Probe(c.Request().Context())
}
