package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-quickbooks/accounting"
	"github.com/goliatone/go-quickbooks/core"
	"github.com/goliatone/go-quickbooks/httpapi"
	"gotest.tools/v3/assert"
)

type stubCustomers struct {
	lastQuery  accounting.CustomerQuery
	lastUpdate accounting.Customer
}

func (s *stubCustomers) CreateCustomer(_ context.Context, _ string, customer accounting.Customer) (accounting.Customer, error) {
	customer.ID = "101"
	customer.SyncToken = "0"
	return customer, nil
}

func (s *stubCustomers) GetCustomer(_ context.Context, _ string, id string) (accounting.Customer, error) {
	return accounting.Customer{ID: id, DisplayName: "Amy's Bird Sanctuary"}, nil
}

func (s *stubCustomers) UpdateCustomer(_ context.Context, _ string, customer accounting.Customer) (accounting.Customer, error) {
	s.lastUpdate = customer
	return customer, nil
}

func (s *stubCustomers) DeleteCustomer(_ context.Context, _ string, id string) (accounting.Customer, error) {
	active := false
	return accounting.Customer{ID: id, Active: &active}, nil
}

func (s *stubCustomers) QueryCustomers(_ context.Context, _ string, q accounting.CustomerQuery) (accounting.CustomerPage, error) {
	s.lastQuery = q
	return accounting.CustomerPage{Customers: []accounting.Customer{{ID: "1"}}, StartPosition: 1, MaxResults: q.MaxResults}, nil
}

func setupCustomerRoutes(t *testing.T, customers *stubCustomers, connected bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	ctrl := httpapi.NewController(httpapi.ControllerConfig{}, router.Group("/"), &stubService{
		status: core.ConnectionStatus{Connected: connected},
	}, httpapi.HeaderOwnerResolver("X-User-ID"), nil)
	ctrl.SetupRoutes()
	ctrl.SetupCustomerRoutes(customers)
	return router
}

func TestCustomerRoutes_GetAndList(t *testing.T) {
	customers := &stubCustomers{}
	router := setupCustomerRoutes(t, customers, true)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quickbooks/customers/58", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusOK)
	var body struct {
		Customer accounting.Customer `json:"customer"`
	}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, body.Customer.ID, "58")

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/quickbooks/customers?active=true&limit=25", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusOK)
	assert.Assert(t, customers.lastQuery.ActiveOnly)
	assert.Equal(t, customers.lastQuery.MaxResults, 25)
}

func TestCustomerRoutes_CreateAndUpdate(t *testing.T) {
	customers := &stubCustomers{}
	router := setupCustomerRoutes(t, customers, true)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/quickbooks/customers", strings.NewReader(`{"DisplayName":"Cool Cars"}`))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusCreated)

	recorder = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/quickbooks/customers/101", strings.NewReader(`{"SyncToken":"0","Notes":"vip"}`))
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusOK)
	assert.Equal(t, customers.lastUpdate.ID, "101")
	assert.Equal(t, customers.lastUpdate.Notes, "vip")
}

func TestCustomerRoutes_DeleteMarksInactive(t *testing.T) {
	router := setupCustomerRoutes(t, &stubCustomers{}, true)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/quickbooks/customers/101", nil)
	req.Header.Set("X-User-ID", "u1")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusOK)
	assert.Assert(t, strings.Contains(recorder.Body.String(), `"Active":false`))
}

func TestCustomerRoutes_BlockedWithoutConnection(t *testing.T) {
	router := setupCustomerRoutes(t, &stubCustomers{}, false)

	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/quickbooks/customers/58", nil)
	req.Header.Set("X-User-ID", "u1")
	req.Header.Set("Accept", "application/json")
	router.ServeHTTP(recorder, req)
	assert.Equal(t, recorder.Code, http.StatusForbidden)
}
