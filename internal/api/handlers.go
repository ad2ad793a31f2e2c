// Package api is the Remote→Local surface: the gin handlers the ERP calls to
// deliver notifications and control sessions.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"fimbiz-sync/internal/erp"
	"fimbiz-sync/internal/reconcile"
	"fimbiz-sync/internal/sessions"
	"fimbiz-sync/internal/store"
)

type Handler struct {
	reconciler *reconcile.Reconciler
	sessions   *sessions.Service
	store      store.Store
	log        *zap.Logger
}

func NewHandler(reconciler *reconcile.Reconciler, sessionSvc *sessions.Service, st store.Store, log *zap.Logger) *Handler {
	return &Handler{
		reconciler: reconciler,
		sessions:   sessionSvc,
		store:      st,
		log:        log,
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Request structs

type StatusChangeRequest struct {
	OrderID        string `json:"orderId" binding:"required"`
	Status         string `json:"status" binding:"required"`
	ChangedAt      int64  `json:"changedAt"`
	Comment        string `json:"comment,omitempty"`
	TrackingNumber string `json:"trackingNumber"`
	Carrier        string `json:"carrier"`
	IsPriority     bool   `json:"isPriority"`
	OrderNumber    string `json:"orderNumber,omitempty"`
	TotalAmount    *int64 `json:"totalAmount,omitempty"`
	DeliveryType   string `json:"deliveryType,omitempty"`
	ContractorID   int32  `json:"contractorId,omitempty"`
}

type OrderItemRequest struct {
	NomenclatureID  int32  `json:"nomenclatureId,omitempty"`
	Name            string `json:"name,omitempty"`
	Quantity        int32  `json:"quantity" binding:"required,min=1"`
	Price           int64  `json:"price"`
	DiscountPercent string `json:"discountPercent,omitempty"`
}

type OrderUpdateRequest struct {
	OrderID        string             `json:"orderId" binding:"required"`
	Status         string             `json:"status" binding:"required"`
	ChangedAt      int64              `json:"changedAt"`
	OrderNumber    string             `json:"orderNumber,omitempty"`
	DeliveryType   string             `json:"deliveryType,omitempty"`
	TrackingNumber string             `json:"trackingNumber"`
	Carrier        string             `json:"carrier"`
	IsPriority     bool               `json:"isPriority"`
	TotalAmount    *int64             `json:"totalAmount,omitempty"`
	Items          []OrderItemRequest `json:"items"`
	AttachmentURLs []string           `json:"attachmentUrls,omitempty"`
	InvoiceURL     string             `json:"invoiceUrl,omitempty"`
	UpdDocumentURL string             `json:"updDocumentUrl,omitempty"`
	ContractorID   int32              `json:"contractorId,omitempty"`
}

type OrderDeleteRequest struct {
	OrderID string `json:"orderId" binding:"required"`
}

type CommentCreatedRequest struct {
	OrderID   string `json:"orderId" binding:"required"`
	CommentID string `json:"commentId" binding:"required"`
	Author    string `json:"author,omitempty"`
	Text      string `json:"text" binding:"required"`
	CreatedAt int64  `json:"createdAt"`
}

type SessionControlRequest struct {
	ContractorID int32    `json:"contractorId" binding:"required"`
	Action       string   `json:"action" binding:"required,oneof=revoke_all revoke"`
	SessionIDs   []string `json:"sessionIds,omitempty"`
}

type NotifyResponse struct {
	Success bool    `json:"success"`
	Applied bool    `json:"applied"`
	Message *string `json:"message,omitempty"`
	OrderID string  `json:"orderId,omitempty"`
}

func (h *Handler) writeResult(c *gin.Context, res reconcile.Result, err error) {
	switch {
	case err == nil:
		resp := NotifyResponse{Success: true, Applied: res.Applied, Message: strPtr(res.Reason)}
		if res.OrderID != uuid.Nil {
			resp.OrderID = res.OrderID.String()
		}
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, reconcile.ErrInvalidReference):
		c.JSON(http.StatusBadRequest, NotifyResponse{Success: false, Message: strPtr(err.Error())})
	case errors.Is(err, reconcile.ErrOrderNotFound), errors.Is(err, reconcile.ErrContractorNotFound):
		c.JSON(http.StatusNotFound, NotifyResponse{Success: false, Message: strPtr(err.Error())})
	default:
		h.log.Error("notification failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, NotifyResponse{Success: false, Message: strPtr("internal error")})
	}
}

// NotifyOrderStatusChange handles POST /api/v1/erp/orders/status.
func (h *Handler) NotifyOrderStatusChange(c *gin.Context) {
	var req StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NotifyResponse{Success: false, Message: strPtr(err.Error())})
		return
	}

	n := reconcile.StatusChangeNotification{
		OrderRef:           req.OrderID,
		Status:             req.Status,
		ChangedAt:          erp.FromUnix(req.ChangedAt),
		Comment:            req.Comment,
		TrackingNumber:     req.TrackingNumber,
		Carrier:            req.Carrier,
		IsPriority:         req.IsPriority,
		OrderNumber:        req.OrderNumber,
		DeliveryType:       req.DeliveryType,
		RemoteContractorID: req.ContractorID,
	}
	if req.TotalAmount != nil {
		total := erp.FromMinorUnits(*req.TotalAmount)
		n.TotalAmount = &total
	}

	res, err := h.reconciler.HandleStatusChange(c.Request.Context(), n)
	h.writeResult(c, res, err)
}

// NotifyOrderUpdate handles POST /api/v1/erp/orders/update.
func (h *Handler) NotifyOrderUpdate(c *gin.Context) {
	var req OrderUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NotifyResponse{Success: false, Message: strPtr(err.Error())})
		return
	}

	items := make([]reconcile.OrderItemPayload, 0, len(req.Items))
	for _, item := range req.Items {
		payload := reconcile.OrderItemPayload{
			NomenclatureID: item.NomenclatureID,
			Name:           item.Name,
			Quantity:       item.Quantity,
			Price:          erp.FromMinorUnits(item.Price),
		}
		if item.DiscountPercent != "" {
			if percent, err := decimal.NewFromString(item.DiscountPercent); err == nil {
				payload.DiscountPercent = percent
			}
		}
		items = append(items, payload)
	}

	n := reconcile.OrderUpdateNotification{
		OrderRef:           req.OrderID,
		Status:             req.Status,
		ChangedAt:          erp.FromUnix(req.ChangedAt),
		OrderNumber:        req.OrderNumber,
		DeliveryType:       req.DeliveryType,
		TrackingNumber:     req.TrackingNumber,
		Carrier:            req.Carrier,
		IsPriority:         req.IsPriority,
		Items:              items,
		AttachmentURLs:     req.AttachmentURLs,
		InvoiceURL:         req.InvoiceURL,
		UpdDocumentURL:     req.UpdDocumentURL,
		RemoteContractorID: req.ContractorID,
	}
	if req.TotalAmount != nil {
		total := erp.FromMinorUnits(*req.TotalAmount)
		n.TotalAmount = &total
	}

	res, err := h.reconciler.HandleOrderUpdate(c.Request.Context(), n)
	h.writeResult(c, res, err)
}

// NotifyOrderDelete handles POST /api/v1/erp/orders/delete.
func (h *Handler) NotifyOrderDelete(c *gin.Context) {
	var req OrderDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NotifyResponse{Success: false, Message: strPtr(err.Error())})
		return
	}

	res, err := h.reconciler.HandleDelete(c.Request.Context(), reconcile.DeleteNotification{OrderRef: req.OrderID})
	h.writeResult(c, res, err)
}

// NotifyCommentCreated handles POST /api/v1/erp/comments.
func (h *Handler) NotifyCommentCreated(c *gin.Context) {
	var req CommentCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NotifyResponse{Success: false, Message: strPtr(err.Error())})
		return
	}

	res, err := h.reconciler.HandleComment(c.Request.Context(), reconcile.CommentNotification{
		OrderRef:   req.OrderID,
		ExternalID: req.CommentID,
		Author:     req.Author,
		Text:       req.Text,
		CreatedAt:  erp.FromUnix(req.CreatedAt),
	})
	h.writeResult(c, res, err)
}

type SessionResponse struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expiresAt"`
	CreatedAt int64  `json:"createdAt"`
}

// GetActiveSessions handles GET /api/v1/erp/sessions?contractorId=…
func (h *Handler) GetActiveSessions(c *gin.Context) {
	var query struct {
		ContractorID int32 `form:"contractorId" binding:"required"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	contractor, err := h.store.ContractorByRemoteID(c.Request.Context(), query.ContractorID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "contractor not found"})
		return
	}
	if err != nil {
		h.log.Error("contractor lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	account, err := h.store.AccountByContractorID(c.Request.Context(), contractor.ID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"success": true, "sessions": []SessionResponse{}})
		return
	}
	if err != nil {
		h.log.Error("account lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	active, err := h.sessions.ActiveSessions(c.Request.Context(), account.ID)
	if err != nil {
		h.log.Error("session listing failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	out := make([]SessionResponse, 0, len(active))
	for _, session := range active {
		out = append(out, SessionResponse{
			ID:        session.ID.String(),
			ExpiresAt: erp.ToUnix(session.ExpiresAt),
			CreatedAt: erp.ToUnix(session.CreatedAt),
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessions": out})
}

// ExecuteSessionControl handles POST /api/v1/erp/sessions/control: revoke a
// contractor's sessions in bulk or by id list.
func (h *Handler) ExecuteSessionControl(c *gin.Context) {
	var req SessionControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	contractor, err := h.store.ContractorByRemoteID(c.Request.Context(), req.ContractorID)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "contractor not found"})
		return
	}
	if err != nil {
		h.log.Error("contractor lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	var revoked int64
	switch req.Action {
	case "revoke_all":
		revoked, err = h.sessions.RevokeContractor(c.Request.Context(), contractor.ID)
	case "revoke":
		ids := make([]uuid.UUID, 0, len(req.SessionIDs))
		for _, raw := range req.SessionIDs {
			id, parseErr := uuid.Parse(raw)
			if parseErr != nil {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid session id: " + raw})
				return
			}
			ids = append(ids, id)
		}
		revoked, err = h.sessions.RevokeByIDs(c.Request.Context(), ids)
	}
	if err != nil {
		h.log.Error("session control failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "revoked": revoked})
}
