package adminapi

import (
	"net/http"
	"strings"

	"github.com/dhanvantari/pharmaauth/internal/identity"
	"github.com/dhanvantari/pharmaauth/internal/verify"
	"github.com/dhanvantari/pharmaauth/internal/webserver"
	"github.com/dhanvantari/pharmaauth/pkg/common"
	"github.com/labstack/echo/v4"
)

type verifyPayload struct {
	Payload    string `json:"payload" validate:"required"`
	Location   string `json:"location" validate:"omitempty,max=200"`
	DeviceInfo string `json:"device_info" validate:"omitempty,max=500"`
}

type linkPayload struct {
	Contract string `json:"contract" validate:"required"`
	TokenID  string `json:"token_id" validate:"required,max=160"`
}

func registerVerifyRoutes() {
	webserver.ApiPOST("/verify", verifyPayloadHandler)
	webserver.ApiGET("/verify", verifyURLHandler)
	webserver.ApiPOST("/verify/link", generateLink)
}

func runVerify(c echo.Context, raw, location, device string) error {
	res, err := GetAppContext(c).Engine().Verify(c.Request().Context(), verify.Request{
		Raw:        raw,
		Actor:      currentActor(c),
		Location:   location,
		DeviceInfo: common.IfEmptyStr(device, c.Request().UserAgent()),
		IPAddress:  c.RealIP(),
	})
	if err != nil {
		return failWith(c, err)
	}
	if res.Verdict == verify.InvalidPayload {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "Unrecognized QR payload", res)
	}
	return ok(c, res)
}

func verifyPayloadHandler(c echo.Context) error {
	var payload verifyPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse verify parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	return runVerify(c, payload.Payload, payload.Location, payload.DeviceInfo)
}

// verifyURLHandler serves the landing page target <origin>/verify?contract=&tokenId=
func verifyURLHandler(c echo.Context) error {
	tokenID := strings.TrimSpace(c.QueryParam("tokenId"))
	if tokenID == "" {
		return fail(c, http.StatusBadRequest, "INVALID_PAYLOAD", "tokenId is required", nil)
	}
	raw := identity.VerificationURL(GetAppContext(c).Config().Web.Origin, strings.TrimSpace(c.QueryParam("contract")), tokenID)
	return runVerify(c, raw, c.QueryParam("location"), "")
}

func generateLink(c echo.Context) error {
	var payload linkPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse link parameters", nil)
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	appCtx := GetAppContext(c)
	link, err := appCtx.Engine().GenerateLink(c.Request().Context(), appCtx.Config().Web.Origin, payload.Contract, payload.TokenID)
	if err != nil {
		return failWith(c, err)
	}
	return ok(c, link)
}
