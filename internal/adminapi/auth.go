package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dhanvantari/pharmaauth/internal/domain"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type loginPayload struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

func registerAuthRoutes() {
	webserver.ApiPOST("/auth/login", login)
	webserver.ApiGET("/auth/me", currentManufacturer)
}

func login(c echo.Context) error {
	var payload loginPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse login parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}

	var account domain.Manufacturer
	err := GetDB(c).Where("username = ?", strings.TrimSpace(payload.Username)).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	} else if err != nil {
		return failWith(c, err)
	}
	if !common.CheckPassword(account.Password, payload.Password) {
		return fail(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid username or password", nil)
	}
	if account.Status != common.ENABLED {
		return fail(c, http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled", nil)
	}

	token, expires, err := webserver.IssueToken(GetAppContext(c).Config().Web.Secret, &account, webserver.SessionTTL)
	if err != nil {
		return failWith(c, err)
	}
	if err := GetDB(c).Model(&domain.Manufacturer{}).Where("id = ?", account.ID).
		Update("last_login", time.Now()).Error; err != nil {
		zap.L().Warn("update last login failed", zap.String("namespace", "api"), zap.Error(err))
	}

	return ok(c, map[string]interface{}{
		"token":        token,
		"expires_at":   expires,
		"manufacturer": account,
	})
}

func currentManufacturer(c echo.Context) error {
	actor := currentActor(c)
	if !actor.Authenticated() {
		return failWith(c, domain.ErrUnauthenticated)
	}
	var account domain.Manufacturer
	if err := GetDB(c).Where("id = ?", actor.UserID).First(&account).Error; errors.Is(err, gorm.ErrRecordNotFound) {
		return failWith(c, domain.ErrNotFound)
	} else if err != nil {
		return failWith(c, err)
	}
	return ok(c, account)
}
