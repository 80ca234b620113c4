package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/httpapi"
	"gotest.tools/v3/assert"
)

type stubService struct {
	beginErr     error
	completeErr  error
	disconnected []string
	lastComplete core.CompleteAuthorizationRequest
	status       core.ConnectionStatus
	statusErr    error
}

func (s *stubService) BeginAuthorization(_ context.Context, req core.BeginAuthorizationRequest) (core.BeginAuthorizationResponse, error) {
	if s.beginErr != nil {
		return core.BeginAuthorizationResponse{}, s.beginErr
	}
	return core.BeginAuthorizationResponse{
		URL:   "https://appcenter.intuit.com/connect/oauth2?state=st-" + req.OwnerID,
		State: "st-" + req.OwnerID,
	}, nil
}

func (s *stubService) CompleteAuthorization(_ context.Context, req core.CompleteAuthorizationRequest) (core.ConnectionRecord, error) {
	s.lastComplete = req
	if s.completeErr != nil {
		return core.ConnectionRecord{}, s.completeErr
	}
	return core.ConnectionRecord{OwnerID: "u1", RealmID: req.RealmID}, nil
}

func (s *stubService) Disconnect(_ context.Context, ownerID string) error {
	s.disconnected = append(s.disconnected, ownerID)
	return nil
}

func (s *stubService) ConnectionStatus(_ context.Context, ownerID string) (core.ConnectionStatus, error) {
	if s.statusErr != nil {
		return core.ConnectionStatus{}, s.statusErr
	}
	status := s.status
	status.OwnerID = ownerID
	return status, nil
}

func setupController(t *testing.T, svc *stubService) (*gin.Engine, *httpapi.Controller) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/")

	ctrl := httpapi.NewController(httpapi.ControllerConfig{ReturnURL: "/dashboard"}, group, svc, httpapi.HeaderOwnerResolver("X-User-ID"), nil)
	ctrl.SetupRoutes()

	router.GET("/reports", ctrl.RequireConnection(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": http.StatusOK})
	})
	return router, ctrl
}

func TestConnectRedirectsToIntuit(t *testing.T) {
	router, _ := setupController(t, &stubService{})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/connect", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)
	assert.Equal(t, recorder.Header().Get("Location"), "https://appcenter.intuit.com/connect/oauth2?state=st-u1")
}

func TestConnectRequiresOwner(t *testing.T) {
	router, _ := setupController(t, &stubService{})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/connect", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusUnauthorized)
}

func TestCallbackSuccessRedirectsWithRealm(t *testing.T) {
	svc := &stubService{}
	router, _ := setupController(t, svc)
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/callback?code=abc&realmId=9130&state=st-u1", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)
	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Path, "/dashboard")
	assert.Equal(t, location.Query().Get("status"), "connected")
	assert.Equal(t, location.Query().Get("realm_id"), "9130")
	assert.Equal(t, svc.lastComplete.Code, "abc")
	assert.Equal(t, svc.lastComplete.State, "st-u1")
}

func TestCallbackForwardsProviderErrorAndOffersReconnect(t *testing.T) {
	svc := &stubService{completeErr: core.NewInvalidCallbackError("authorization was denied")}
	router, _ := setupController(t, svc)
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/callback?error=access_denied&error_description=User+denied&state=st-u1", nil)
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)
	assert.Equal(t, svc.lastComplete.ProviderError, "access_denied")
	assert.Equal(t, svc.lastComplete.ProviderErrorDescription, "User denied")

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Query().Get("status"), "error")
	assert.Equal(t, location.Query().Get("error"), core.ErrorInvalidCallback)
	assert.Equal(t, location.Query().Get("reconnect"), "/quickbooks/connect")
}

func TestCallbackExpiredState(t *testing.T) {
	svc := &stubService{completeErr: core.NewInvalidOrExpiredStateError()}
	router, _ := setupController(t, svc)
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/callback?code=abc&realmId=9130&state=old", nil)
	router.ServeHTTP(recorder, req)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Query().Get("error"), core.ErrorInvalidOrExpiredState)
	assert.Equal(t, location.Query().Get("message"), "The QuickBooks authorization request expired. Please connect again.")
}

func TestDisconnectIsIdempotent(t *testing.T) {
	svc := &stubService{}
	router, _ := setupController(t, svc)

	for i := 0; i < 2; i++ {
		recorder := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/quickbooks/disconnect", nil)
		req.Header.Set("X-User-ID", "u1")
		router.ServeHTTP(recorder, req)

		assert.Equal(t, recorder.Code, http.StatusSeeOther)
		assert.Equal(t, recorder.Header().Get("Location"), "/dashboard?message=Successfully+disconnected+from+QuickBooks%21&status=disconnected")
	}
	assert.DeepEqual(t, svc.disconnected, []string{"u1", "u1"})
}

func TestStatusReturnsConnection(t *testing.T) {
	svc := &stubService{status: core.ConnectionStatus{RealmID: "9130", Connected: true, State: core.TokenStateValid}}
	router, _ := setupController(t, svc)
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/quickbooks/status", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusOK)
	var body struct {
		Connection core.ConnectionStatus `json:"connection"`
	}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body.Connection.RealmID, "9130")
	assert.Assert(t, body.Connection.Connected)
}

func TestRequireConnectionRedirectsDisconnectedOwner(t *testing.T) {
	router, _ := setupController(t, &stubService{})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusFound)
	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, location.Path, "/quickbooks/connect")
}

func TestRequireConnectionJSONClients(t *testing.T) {
	router, _ := setupController(t, &stubService{})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Accept", "application/json")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusForbidden)
}

func TestRequireConnectionAllowsConnectedOwner(t *testing.T) {
	router, _ := setupController(t, &stubService{status: core.ConnectionStatus{Connected: true}})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusOK)
}

func TestRequireConnectionSurfacesStatusErrors(t *testing.T) {
	router, _ := setupController(t, &stubService{statusErr: core.NewCodecError(errors.New("bad envelope"), "token decrypt failed")})
	recorder := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodGet, "/reports", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)

	assert.Equal(t, recorder.Code, http.StatusInternalServerError)
	var body map[string]any
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body["error"], core.ErrorCodec)
	assert.Equal(t, body["reconnect"], "/quickbooks/connect")
}

func TestErrorMessageTransportIsNotReconnectable(t *testing.T) {
	message, reconnect := httpapi.ErrorMessage(core.NewTransportError(context.DeadlineExceeded, "timeout"))
	assert.Equal(t, message, "QuickBooks could not be reached. Please try again later.")
	assert.Assert(t, !reconnect)
}
