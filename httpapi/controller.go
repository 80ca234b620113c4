package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/google/go-querystring/query"
)

const DefaultBasePath = "/quickbooks"

// OwnerResolver returns the local account id for the request. Hosts plug in
// their own session or auth lookup.
type OwnerResolver func(c *gin.Context) (string, bool)

// HeaderOwnerResolver reads the owner id from a request header.
func HeaderOwnerResolver(header string) OwnerResolver {
	return func(c *gin.Context) (string, bool) {
		owner := strings.TrimSpace(c.GetHeader(header))
		return owner, owner != ""
	}
}

type ConnectionService interface {
	BeginAuthorization(ctx context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error)
	CompleteAuthorization(ctx context.Context, req core.CompleteAuthorizationRequest) (core.ConnectionRecord, error)
	Disconnect(ctx context.Context, ownerID string) error
	ConnectionStatus(ctx context.Context, ownerID string) (core.ConnectionStatus, error)
}

type ControllerConfig struct {
	// BasePath is the route group under the router, "/quickbooks" by default.
	BasePath string
	// ReturnURL receives the user after callback and disconnect, with the
	// outcome in the query string.
	ReturnURL string
}

type Controller struct {
	Config  ControllerConfig
	Router  *gin.RouterGroup
	Service ConnectionService
	Owner   OwnerResolver
	Logger  glog.Logger
}

func NewController(config ControllerConfig, router *gin.RouterGroup, service ConnectionService, owner OwnerResolver, logger glog.Logger) *Controller {
	if strings.TrimSpace(config.BasePath) == "" {
		config.BasePath = DefaultBasePath
	}
	if strings.TrimSpace(config.ReturnURL) == "" {
		config.ReturnURL = "/"
	}
	var routes *gin.RouterGroup
	if router != nil {
		routes = router.Group(config.BasePath)
	}
	return &Controller{
		Config:  config,
		Router:  routes,
		Service: service,
		Owner:   owner,
		Logger:  glog.Ensure(logger),
	}
}

func (controller *Controller) SetupRoutes() {
	controller.Router.GET("/connect", controller.connectHandler)
	controller.Router.GET("/callback", controller.callbackHandler)
	controller.Router.POST("/disconnect", controller.disconnectHandler)
	controller.Router.GET("/status", controller.statusHandler)
}

// ConnectPath is where users are sent to (re)connect.
func (controller *Controller) ConnectPath() string {
	return strings.TrimSuffix(controller.Config.BasePath, "/") + "/connect"
}

type resultQuery struct {
	Status    string `url:"status"`
	RealmID   string `url:"realm_id,omitempty"`
	Error     string `url:"error,omitempty"`
	Message   string `url:"message,omitempty"`
	Reconnect string `url:"reconnect,omitempty"`
}

func (controller *Controller) connectHandler(c *gin.Context) {
	owner, ok := controller.owner(c)
	if !ok {
		return
	}

	response, err := controller.Service.BeginAuthorization(c.Request.Context(), core.BeginAuthorizationRequest{OwnerID: owner})
	if err != nil {
		controller.Logger.Error("quickbooks connect failed", "owner_id", owner, "error", err)
		controller.redirectResult(c, http.StatusFound, controller.errorQuery(err))
		return
	}

	c.Redirect(http.StatusFound, response.URL)
}

func (controller *Controller) callbackHandler(c *gin.Context) {
	req := core.CompleteAuthorizationRequest{
		Code:                     c.Query("code"),
		RealmID:                  c.Query("realmId"),
		State:                    c.Query("state"),
		ProviderError:            c.Query("error"),
		ProviderErrorDescription: c.Query("error_description"),
	}

	record, err := controller.Service.CompleteAuthorization(c.Request.Context(), req)
	if err != nil {
		controller.Logger.Warn("quickbooks callback rejected",
			"realm_id", req.RealmID,
			"provider_error", req.ProviderError,
			"error", err,
		)
		controller.redirectResult(c, http.StatusFound, controller.errorQuery(err))
		return
	}

	controller.Logger.Info("quickbooks connected", "owner_id", record.OwnerID, "realm_id", record.RealmID)
	controller.redirectResult(c, http.StatusFound, resultQuery{
		Status:  "connected",
		RealmID: record.RealmID,
		Message: "Successfully connected to QuickBooks!",
	})
}

func (controller *Controller) disconnectHandler(c *gin.Context) {
	owner, ok := controller.owner(c)
	if !ok {
		return
	}

	if err := controller.Service.Disconnect(c.Request.Context(), owner); err != nil {
		controller.Logger.Error("quickbooks disconnect failed", "owner_id", owner, "error", err)
		controller.redirectResult(c, http.StatusSeeOther, controller.errorQuery(err))
		return
	}

	controller.redirectResult(c, http.StatusSeeOther, resultQuery{
		Status:  "disconnected",
		Message: "Successfully disconnected from QuickBooks!",
	})
}

func (controller *Controller) statusHandler(c *gin.Context) {
	owner, ok := controller.owner(c)
	if !ok {
		return
	}

	status, err := controller.Service.ConnectionStatus(c.Request.Context(), owner)
	if err != nil {
		controller.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     http.StatusOK,
		"connection": status,
	})
}

func (controller *Controller) owner(c *gin.Context) (string, bool) {
	if controller.Owner == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"status":  http.StatusInternalServerError,
			"message": "Owner resolver is not configured",
		})
		return "", false
	}
	owner, ok := controller.Owner(c)
	owner = strings.TrimSpace(owner)
	if !ok || owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"status":  http.StatusUnauthorized,
			"message": "Unauthorized",
		})
		return "", false
	}
	return owner, true
}

func (controller *Controller) errorQuery(err error) resultQuery {
	message, reconnect := ErrorMessage(err)
	q := resultQuery{
		Status:  "error",
		Error:   textCode(err),
		Message: message,
	}
	if reconnect {
		q.Reconnect = controller.ConnectPath()
	}
	return q
}

func (controller *Controller) redirectResult(c *gin.Context, code int, q resultQuery) {
	values, err := query.Values(q)
	if err != nil {
		controller.Logger.Error("quickbooks result query encode failed", "error", err)
		c.Redirect(code, controller.Config.ReturnURL)
		return
	}
	separator := "?"
	if strings.Contains(controller.Config.ReturnURL, "?") {
		separator = "&"
	}
	c.Redirect(code, fmt.Sprintf("%s%s%s", controller.Config.ReturnURL, separator, values.Encode()))
}

func (controller *Controller) abortWithError(c *gin.Context, err error) {
	message, reconnect := ErrorMessage(err)
	status := http.StatusInternalServerError
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code >= 400 {
		status = rich.Code
	}
	body := gin.H{
		"status":  status,
		"error":   textCode(err),
		"message": message,
	}
	if reconnect {
		body["reconnect"] = controller.ConnectPath()
	}
	c.AbortWithStatusJSON(status, body)
}

// ErrorMessage maps an error kind to a message fit for end users and reports
// whether reconnecting is the way out.
func ErrorMessage(err error) (string, bool) {
	switch {
	case err == nil:
		return "", false
	case core.IsInvalidOrExpiredState(err):
		return "The QuickBooks authorization request expired. Please connect again.", true
	case core.IsInvalidCallback(err):
		return "QuickBooks did not complete the authorization.", true
	case core.IsKind(err, core.ErrorExchangeFailed):
		return "QuickBooks rejected the authorization. Please try connecting again.", true
	case core.IsReauthorizationRequired(err):
		return "Your QuickBooks connection has expired. Please reconnect.", true
	case core.IsNotConnected(err):
		return "You must connect to QuickBooks before accessing this resource.", true
	case core.IsCodecError(err):
		return "Your stored QuickBooks credentials cannot be read. Please reconnect.", true
	case accounting.IsCustomerNotFound(err):
		return "QuickBooks customer not found.", false
	case core.IsKind(err, core.ErrorProviderRequestFailed):
		return "QuickBooks rejected the request.", false
	case core.IsTransportFailure(err):
		return "QuickBooks could not be reached. Please try again later.", false
	default:
		return "An unexpected error occurred while talking to QuickBooks.", false
	}
}

func textCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.TextCode != "" {
		return rich.TextCode
	}
	return core.ErrorInternal
}
