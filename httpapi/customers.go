package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goliatone/go-quickbooks/accounting"
)

type CustomerService interface {
	CreateCustomer(ctx context.Context, ownerID string, customer accounting.Customer) (accounting.Customer, error)
	GetCustomer(ctx context.Context, ownerID string, id string) (accounting.Customer, error)
	UpdateCustomer(ctx context.Context, ownerID string, customer accounting.Customer) (accounting.Customer, error)
	DeleteCustomer(ctx context.Context, ownerID string, id string) (accounting.Customer, error)
	QueryCustomers(ctx context.Context, ownerID string, q accounting.CustomerQuery) (accounting.CustomerPage, error)
}

type CustomerListRequest struct {
	ActiveOnly    bool `form:"active"`
	StartPosition int  `form:"start"`
	MaxResults    int  `form:"limit"`
}

// SetupCustomerRoutes proxies customer CRUD under <base>/customers, behind
// RequireConnection.
func (controller *Controller) SetupCustomerRoutes(customers CustomerService) {
	handler := &customerHandlers{controller: controller, customers: customers}
	group := controller.Router.Group("/customers", controller.RequireConnection())
	group.GET("", handler.list)
	group.POST("", handler.create)
	group.GET("/:id", handler.get)
	group.PUT("/:id", handler.update)
	group.DELETE("/:id", handler.delete)
}

type customerHandlers struct {
	controller *Controller
	customers  CustomerService
}

func (h *customerHandlers) list(c *gin.Context) {
	owner, _ := h.controller.Owner(c)
	var req CustomerListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "message": "Bad Request"})
		return
	}
	page, err := h.customers.QueryCustomers(c.Request.Context(), owner, accounting.CustomerQuery{
		ActiveOnly:    req.ActiveOnly,
		StartPosition: req.StartPosition,
		MaxResults:    req.MaxResults,
	})
	if err != nil {
		h.controller.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "customers": page.Customers, "start": page.StartPosition, "limit": page.MaxResults})
}

func (h *customerHandlers) get(c *gin.Context) {
	owner, _ := h.controller.Owner(c)
	customer, err := h.customers.GetCustomer(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.controller.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "customer": customer})
}

func (h *customerHandlers) create(c *gin.Context) {
	owner, _ := h.controller.Owner(c)
	var customer accounting.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "message": "Bad Request"})
		return
	}
	created, err := h.customers.CreateCustomer(c.Request.Context(), owner, customer)
	if err != nil {
		h.controller.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": http.StatusCreated, "customer": created})
}

func (h *customerHandlers) update(c *gin.Context) {
	owner, _ := h.controller.Owner(c)
	var customer accounting.Customer
	if err := c.ShouldBindJSON(&customer); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": http.StatusBadRequest, "message": "Bad Request"})
		return
	}
	customer.ID = c.Param("id")
	updated, err := h.customers.UpdateCustomer(c.Request.Context(), owner, customer)
	if err != nil {
		h.controller.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "customer": updated})
}

func (h *customerHandlers) delete(c *gin.Context) {
	owner, _ := h.controller.Owner(c)
	deleted, err := h.customers.DeleteCustomer(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.controller.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": http.StatusOK, "customer": deleted})
}
