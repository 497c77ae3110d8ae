package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"xui-shop-core/internal/catalog"
	apperrors "xui-shop-core/internal/errors"
	"xui-shop-core/internal/validation"
)

type handler struct {
	svc    Entitlements
	users  Users
	logger *logrus.Logger
}

type serviceView struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Protocol    string         `json:"protocol"`
	Plans       []catalog.Plan `json:"plans"`
}

// grantRequest names either days or a plan of the service; a plan wins
type grantRequest struct {
	Service string `json:"service" binding:"required"`
	Days    int    `json:"days"`
	Plan    string `json:"plan"`
}

func (h *handler) listServices(c *gin.Context) {
	includeAdmin, _ := strconv.ParseBool(c.Query("include_admin"))

	visible := h.svc.Catalog().Visible()
	out := make([]serviceView, 0, len(visible))
	for _, s := range visible {
		out = append(out, serviceView{
			Key:         s.Key,
			Name:        s.Name,
			Description: s.Description,
			Protocol:    s.Protocol,
			Plans:       s.PlansFor(includeAdmin),
		})
	}
	c.JSON(http.StatusOK, gin.H{"services": out})
}

func (h *handler) lookup(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	serviceKey := h.serviceKey(c)

	inbound, client, err := h.svc.Lookup(c.Request.Context(), userID, serviceKey)
	if err != nil {
		h.fail(c, err)
		return
	}
	if client == nil {
		h.fail(c, apperrors.ErrNoEntitlement)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"inbound_id": inbound.ID,
		"client":     client,
	})
}

func (h *handler) link(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	uri, err := h.svc.Link(c.Request.Context(), userID, h.serviceKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"link": uri})
}

func (h *handler) qr(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	png, err := h.svc.QRCode(c.Request.Context(), userID, h.serviceKey(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (h *handler) grant(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	days := req.Days
	if req.Plan != "" {
		plan, ok := h.svc.Catalog().Plan(req.Service, req.Plan)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unknown plan"})
			return
		}
		days = plan.Days
	}

	result, err := h.svc.Grant(c.Request.Context(), userID, req.Service, days)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": result})
}

func (h *handler) reconcile(c *gin.Context) {
	stats, err := h.svc.Reconcile(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

func (h *handler) registryStats(c *gin.Context) {
	ctx := c.Request.Context()
	total, err := h.users.Count(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	withVPN, err := h.users.CountWithVPN(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": total, "users_with_vpn": withVPN})
}

func (h *handler) user(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	user, err := h.users.Get(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "user not registered"})
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *handler) userID(c *gin.Context) (int64, bool) {
	id, err := validation.ParseTelegramID(c.Param("tg_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return 0, false
	}
	return id, true
}

func (h *handler) serviceKey(c *gin.Context) string {
	if key := c.Query("service"); key != "" {
		return key
	}
	if def, ok := h.svc.Catalog().Default(); ok {
		return def.Key
	}
	return ""
}

// fail maps core errors to statuses; panel bodies stay in the logs
func (h *handler) fail(c *gin.Context, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	} else {
		h.logger.Debugf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}

func classify(err error) (int, string) {
	var validationErr *apperrors.ValidationError
	var panelErr *apperrors.PanelAPIError

	switch {
	case apperrors.IsUnavailable(err):
		return http.StatusServiceUnavailable, "panel is unavailable, retry later"
	case errors.Is(err, apperrors.ErrUnknownService):
		return http.StatusBadRequest, "unknown service"
	case errors.As(err, &validationErr):
		return http.StatusBadRequest, validationErr.Error()
	case errors.Is(err, apperrors.ErrNoEntitlement):
		return http.StatusNotFound, "no entitlement for this service"
	case errors.Is(err, apperrors.ErrReconcileInProgress):
		return http.StatusConflict, "reconciliation already in progress"
	case errors.Is(err, apperrors.ErrClientExists):
		return http.StatusConflict, "client already exists on the panel"
	case errors.As(err, &panelErr):
		return http.StatusBadGateway, "panel request failed"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
