package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nulzo/streamchat/internal/server/validator"
	"github.com/nulzo/streamchat/internal/settings"
	"github.com/nulzo/streamchat/pkg/api"
)

// settingsDocument is the wire shape, matching what the store persists.
type settingsDocument struct {
	LLM api.Settings `json:"llm"`
}

type SettingsHandler struct {
	store     settings.Store
	validator *validator.Validator
}

func NewSettingsHandler(store settings.Store, v *validator.Validator) *SettingsHandler {
	return &SettingsHandler{store: store, validator: v}
}

// Get returns the current settings with credentials redacted.
//
// GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	s, err := h.store.Load(c.Request.Context())
	if err != nil {
		_ = c.Error(api.NewProblem(http.StatusInternalServerError, "Internal Server Error", "Failed to load settings", api.WithLog(err)))
		return
	}
	c.JSON(http.StatusOK, settingsDocument{LLM: s.Redacted()})
}

// Put replaces the settings. A credential sent back exactly as Get redacted
// it keeps the stored value.
//
// PUT /api/settings
func (h *SettingsHandler) Put(c *gin.Context) {
	var doc settingsDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		_ = c.Error(api.ValidationProblem(h.validator.ParseError(err)))
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.Load(ctx)
	if err != nil {
		_ = c.Error(api.NewProblem(http.StatusInternalServerError, "Internal Server Error", "Failed to load settings", api.WithLog(err)))
		return
	}

	next := doc.LLM
	redacted := current.Redacted()
	if next.APIKey != "" && next.APIKey == redacted.APIKey {
		next.APIKey = current.APIKey
	}
	if next.ArkAPIKey != "" && next.ArkAPIKey == redacted.ArkAPIKey {
		next.ArkAPIKey = current.ArkAPIKey
	}

	if err := h.store.Save(ctx, next); err != nil {
		var cfgErr *api.ConfigurationError
		if errors.As(err, &cfgErr) {
			field := cfgErr.Field
			if field == "" {
				field = "provider"
			}
			_ = c.Error(api.ValidationProblem(map[string]string{field: cfgErr.Err.Error()}))
			return
		}
		_ = c.Error(api.NewProblem(http.StatusInternalServerError, "Internal Server Error", "Failed to save settings", api.WithLog(err)))
		return
	}

	c.JSON(http.StatusOK, settingsDocument{LLM: next.Redacted()})
}
