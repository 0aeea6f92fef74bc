package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lastwish-io/estate-engine/internal/engine"
	"github.com/lastwish-io/estate-engine/internal/plan"
	"github.com/lastwish-io/estate-engine/internal/provider"
)

type Handler struct {
	engine *engine.Engine
}

func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// -------- DTOs for the local planning API --------

type connectRes struct {
	Account  string `json:"account"`
	Switched bool   `json:"switched"`
}

type signRes struct {
	Account   string `json:"account"`
	Nonce     string `json:"nonce"`
	Signature string `json:"signature"`
	SignedAt  string `json:"signed_at"`
}

type ownerReq struct {
	Name         string `json:"name" binding:"required"`
	Instructions string `json:"instructions"`
	KeyLocation  string `json:"key_location"`
}

type walletReq struct {
	Address     string `json:"address" binding:"required"`
	DisplayName string `json:"display_name"`
}

type beneficiaryReq struct {
	Name     string `json:"name" binding:"required"`
	Address  string `json:"address"`
	Email    string `json:"email"`
	Relation string `json:"relation"`
	Role     string `json:"role"`
}

type splitAddReq struct {
	Asset string `json:"asset" binding:"required"`
}

type splitSetReq struct {
	Asset         string  `json:"asset" binding:"required"`
	Index         *int    `json:"index" binding:"required"`
	BeneficiaryID string  `json:"beneficiary_id" binding:"required"`
	Percent       float64 `json:"percent"`
	Renormalize   bool    `json:"renormalize"`
}

type splitRemoveReq struct {
	Asset string `json:"asset" binding:"required"`
	Index *int   `json:"index" binding:"required"`
}

func (h *Handler) Health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// GET /api/state
func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

// POST /api/session/connect
func (h *Handler) Connect(c *gin.Context) {
	account, switched, err := h.engine.Connect(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, connectRes{Account: account.Hex(), Switched: switched})
}

// POST /api/session/sign
func (h *Handler) Sign(c *gin.Context) {
	sess, err := h.engine.Sign(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, signRes{
		Account:   sess.Account.Hex(),
		Nonce:     sess.Nonce,
		Signature: sess.Signature,
		SignedAt:  sess.SignedAt.Format(timeFormat),
	})
}

// POST /api/session/disconnect
func (h *Handler) Disconnect(c *gin.Context) {
	if err := h.engine.Disconnect(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// PUT /api/owner
func (h *Handler) SetOwner(c *gin.Context) {
	var req ownerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	owner := plan.Owner{Name: req.Name, Instructions: req.Instructions, KeyLocation: req.KeyLocation}
	if err := h.engine.SetOwner(c.Request.Context(), owner); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, owner)
}

// POST /api/wallets
func (h *Handler) AddWallet(c *gin.Context) {
	var req walletReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w, err := h.engine.AddWallet(c.Request.Context(), req.Address, req.DisplayName)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// DELETE /api/wallets/:id
func (h *Handler) RemoveWallet(c *gin.Context) {
	if err := h.engine.RemoveWallet(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/beneficiaries
func (h *Handler) AddBeneficiary(c *gin.Context) {
	var req beneficiaryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.engine.AddBeneficiary(c.Request.Context(), plan.Beneficiary{
		Name:     req.Name,
		Address:  req.Address,
		Email:    req.Email,
		Relation: req.Relation,
		Role:     plan.Role(req.Role),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

// DELETE /api/beneficiaries/:id
func (h *Handler) RemoveBeneficiary(c *gin.Context) {
	if err := h.engine.RemoveBeneficiary(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// GET /api/assets
func (h *Handler) Assets(c *gin.Context) {
	holdings, err := h.engine.RefreshAssets(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, holdings)
}

// POST /api/assets/demo
func (h *Handler) DemoAssets(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.UseDemoAssets())
}

// POST /api/splits/add
func (h *Handler) AddSplit(c *gin.Context) {
	var req splitAddReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.AddSplit(plan.AssetKey(req.Asset)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/splits/set
func (h *Handler) SetSplit(c *gin.Context) {
	var req splitSetReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	err := h.engine.SetSplit(plan.AssetKey(req.Asset), *req.Index, req.BeneficiaryID, req.Percent, req.Renormalize)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/splits/remove
func (h *Handler) RemoveSplit(c *gin.Context) {
	var req splitRemoveReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.RemoveSplit(plan.AssetKey(req.Asset), *req.Index); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/assignments/save
func (h *Handler) SaveAssignments(c *gin.Context) {
	if err := h.engine.SaveAssignments(c.Request.Context()); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// POST /api/payment
func (h *Handler) Pay(c *gin.Context) {
	receipt, err := h.engine.Pay(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

// GET /api/document
func (h *Handler) Document(c *gin.Context) {
	html, err := h.engine.RenderDocument(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// fail maps engine errors onto status codes the SPA can branch on.
func fail(c *gin.Context, err error) {
	var verr *plan.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": verr.Error(),
			"asset": string(verr.Asset),
			"total": verr.Total,
		})
	case errors.Is(err, engine.ErrNotConnected):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrNotPaid):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrStale):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrUserDeclined):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, provider.ErrUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
