package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chordfold/chordfold/internal/draft"
	"github.com/chordfold/chordfold/internal/saveflow"
	"github.com/chordfold/chordfold/internal/sheets"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const ownerIDContextKey = "chordfold_owner_id"

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingSheetService  = errors.New("sheet service dependency required")
	errMissingDraftStore    = errors.New("draft store dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenValidator checks bearer tokens and returns the owner they were
// issued for.
type TokenValidator interface {
	Validate(token string) (string, error)
}

// Dependencies carries the services the HTTP surface exposes.
type Dependencies struct {
	TokenManager TokenValidator
	SheetService *sheets.Service
	DraftStore   *draft.TieredStore
	Clock        func() time.Time
	Logger       *zap.Logger
}

// NewHTTPHandler assembles the API router.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.SheetService == nil {
		return nil, errMissingSheetService
	}
	if deps.DraftStore == nil {
		return nil, errMissingDraftStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens: deps.TokenManager,
		sheets: deps.SheetService,
		drafts: deps.DraftStore,
		clock:  clock,
		logger: logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/sheets", handler.handleListSheets)
	protected.POST("/sheets", handler.handleCreateSheet)
	protected.GET("/sheets/:id", handler.handleGetSheet)
	protected.PUT("/sheets/:id", handler.handleUpdateSheet)
	protected.DELETE("/sheets/:id", handler.handleDeleteSheet)
	protected.POST("/sheets/:id/beacon", handler.handleBeacon)
	protected.GET("/sheets/:id/draft", handler.handleGetDraft)
	protected.DELETE("/sheets/:id/draft", handler.handleDiscardDraft)

	return router, nil
}

type httpHandler struct {
	tokens TokenValidator
	sheets *sheets.Service
	drafts *draft.TieredStore
	clock  func() time.Time
	logger *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.Validate(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(ownerIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) requestOwner(c *gin.Context) (sheets.OwnerID, bool) {
	ownerID, err := sheets.NewOwnerID(c.GetString(ownerIDContextKey))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return ownerID, true
}

func (h *httpHandler) requestSheetID(c *gin.Context) (sheets.SheetID, bool) {
	sheetID, err := sheets.NewSheetID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_sheet_id"})
		return "", false
	}
	return sheetID, true
}

type sheetPayload struct {
	SheetID          string `json:"sheet_id"`
	Title            string `json:"title"`
	Content          string `json:"content"`
	CreatedAtSeconds int64  `json:"created_at_s"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
	Version          int64  `json:"version"`
}

func toSheetPayload(sheet sheets.Sheet) sheetPayload {
	return sheetPayload{
		SheetID:          sheet.SheetID,
		Title:            sheet.Title,
		Content:          sheet.Content,
		CreatedAtSeconds: sheet.CreatedAtSeconds,
		UpdatedAtSeconds: sheet.UpdatedAtSeconds,
		Version:          sheet.Version,
	}
}

type writeSheetPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) handleListSheets(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}

	listed, err := h.sheets.ListSheets(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list sheets", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payloads := make([]sheetPayload, 0, len(listed))
	for _, sheet := range listed {
		payloads = append(payloads, toSheetPayload(sheet))
	}
	c.JSON(http.StatusOK, gin.H{"sheets": payloads})
}

func (h *httpHandler) handleCreateSheet(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}

	var request writeSheetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	title, err := sheets.NewTitle(request.Title)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_title"})
		return
	}

	created, err := h.sheets.CreateSheet(c.Request.Context(), ownerID, title, request.Content)
	if err != nil {
		h.logger.Error("failed to create sheet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed"})
		return
	}
	c.JSON(http.StatusCreated, toSheetPayload(created))
}

func (h *httpHandler) handleGetSheet(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	sheet, err := h.sheets.GetSheet(c.Request.Context(), ownerID, sheetID)
	if errors.Is(err, sheets.ErrSheetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load sheet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get_failed"})
		return
	}
	c.JSON(http.StatusOK, toSheetPayload(sheet))
}

func (h *httpHandler) handleUpdateSheet(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	var request writeSheetPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	title, err := sheets.NewTitle(request.Title)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_title"})
		return
	}

	updated, err := h.sheets.UpdateSheet(c.Request.Context(), ownerID, sheetID, title, request.Content)
	if errors.Is(err, sheets.ErrSheetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if errors.Is(err, sheets.ErrVersionConflict) {
		c.JSON(http.StatusConflict, gin.H{"error": "version_conflict"})
		return
	}
	if err != nil {
		h.logger.Error("failed to update sheet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}
	c.JSON(http.StatusOK, toSheetPayload(updated))
}

func (h *httpHandler) handleDeleteSheet(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	err := h.sheets.DeleteSheet(c.Request.Context(), ownerID, sheetID)
	if errors.Is(err, sheets.ErrSheetNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to delete sheet", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

type beaconPayload struct {
	Content      string `json:"content"`
	SavedAtMilli int64  `json:"saved_at_ms"`
}

// handleBeacon accepts a final-content push from a closing editor. The
// sender never waits for the outcome, so the endpoint acknowledges with 202
// and applies the content best-effort.
func (h *httpHandler) handleBeacon(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	var request beaconPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	existing, err := h.sheets.GetSheet(c.Request.Context(), ownerID, sheetID)
	if err == nil {
		if _, err := h.sheets.UpdateSheet(c.Request.Context(), ownerID, sheetID,
			sheets.Title(existing.Title), request.Content); err != nil {
			h.logger.Warn("beacon content apply failed",
				zap.String("sheet_id", sheetID.String()), zap.Error(err))
		}
	} else if !errors.Is(err, sheets.ErrSheetNotFound) {
		h.logger.Warn("beacon sheet lookup failed",
			zap.String("sheet_id", sheetID.String()), zap.Error(err))
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

type draftPayload struct {
	State         string             `json:"state"`
	Preview       string             `json:"preview,omitempty"`
	Age           string             `json:"age,omitempty"`
	Content       string             `json:"content,omitempty"`
	CommandLog    []editorLogPayload `json:"command_log,omitempty"`
	SavedAtMilli  int64              `json:"saved_at_ms,omitempty"`
	SchemaVersion int                `json:"schema_version,omitempty"`
}

type editorLogPayload struct {
	Kind    string `json:"kind"`
	Pos     int    `json:"pos"`
	Text    string `json:"text,omitempty"`
	Removed string `json:"removed,omitempty"`
	AtMilli int64  `json:"at_ms"`
}

// handleGetDraft runs the recovery check for a sheet and returns either the
// orphaned draft or a resolved state.
func (h *httpHandler) handleGetDraft(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	negotiator, err := saveflow.NewNegotiator(saveflow.NegotiatorConfig{
		EntityID: sheetID.String(),
		OwnerID:  ownerID.String(),
		Store:    h.drafts,
		Clock:    h.clock,
		Logger:   h.logger,
	})
	if err != nil {
		h.logger.Error("failed to build recovery negotiator", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recovery_failed"})
		return
	}
	if err := negotiator.Check(c.Request.Context()); err != nil {
		h.logger.Error("draft recovery check failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recovery_failed"})
		return
	}

	payload := draftPayload{State: string(negotiator.State())}
	if record := negotiator.Draft(); record != nil {
		payload.Preview = negotiator.Preview()
		payload.Age = negotiator.Age()
		payload.Content = record.Content
		payload.SavedAtMilli = record.SavedAt.UnixMilli()
		payload.SchemaVersion = record.SchemaVersion
		for _, entry := range record.CommandLog {
			payload.CommandLog = append(payload.CommandLog, editorLogPayload{
				Kind:    string(entry.Kind),
				Pos:     entry.Pos,
				Text:    entry.Text,
				Removed: entry.Removed,
				AtMilli: entry.AtMilli,
			})
		}
	}
	c.JSON(http.StatusOK, payload)
}

// handleDiscardDraft removes a sheet's draft from both storage tiers.
func (h *httpHandler) handleDiscardDraft(c *gin.Context) {
	ownerID, ok := h.requestOwner(c)
	if !ok {
		return
	}
	sheetID, ok := h.requestSheetID(c)
	if !ok {
		return
	}

	if err := h.drafts.Delete(c.Request.Context(), sheetID.String(), ownerID.String()); err != nil {
		h.logger.Error("failed to discard draft", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discard_failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
