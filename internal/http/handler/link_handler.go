package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PlasmaGamerz/Lyro-Spotify/internal/domain"
	"github.com/PlasmaGamerz/Lyro-Spotify/internal/service/link"
)

// LinkHandler exposes the account-linking endpoints.
type LinkHandler struct {
	Link *link.Service
}

// NewLinkHandler creates the handler set.
func NewLinkHandler(linkService *link.Service) *LinkHandler {
	return &LinkHandler{Link: linkService}
}

// Home is the human-facing landing page.
func (h *LinkHandler) Home(c *gin.Context) {
	c.String(http.StatusOK, "Lyro Spotify OAuth server running")
}

// Healthz is the liveness probe.
func (h *LinkHandler) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Login redirects the user to the Spotify authorization page. The Discord
// user id must be passed by the bot.
func (h *LinkHandler) Login(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user is required."})
		return
	}

	authURL, err := h.Link.BeginLink(c.Request.Context(), userID)
	if err != nil {
		h.respondLinkError(c, err)
		return
	}
	c.Redirect(http.StatusFound, authURL)
}

// Callback receives the provider redirect, completes the exchange, and shows
// a small confirmation page.
func (h *LinkHandler) Callback(c *gin.Context) {
	cred, err := h.Link.CompleteLink(c.Request.Context(), c.Query("code"), c.Query("state"))
	if err != nil {
		h.respondLinkError(c, err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, `<!doctype html>
<html>
<head><title>Spotify linked</title></head>
<body>
<h1>Spotify login successful</h1>
<p>Your Spotify account is now linked. You can return to Discord.</p>
<p>Token valid until %s.</p>
</body>
</html>`, cred.ExpiresAt.UTC().Format(time.RFC1123))
}

type credentialResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	Scope       string `json:"scope,omitempty"`
	ProfileURL  string `json:"profile_url,omitempty"`
	ExpiresAt   int64  `json:"expires_at"`
	Status      string `json:"status"`
}

// Tokens serves the stored credential to the bot, refreshing just-in-time
// when the access token is known-expired.
func (h *LinkHandler) Tokens(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user is required."})
		return
	}

	cred, err := h.Link.Credential(c.Request.Context(), userID)
	if err != nil {
		h.respondLinkError(c, err)
		return
	}

	c.JSON(http.StatusOK, credentialResponse{
		UserID:      cred.UserID,
		AccessToken: cred.AccessToken,
		TokenType:   cred.TokenType,
		Scope:       cred.Scope,
		ProfileURL:  cred.ProfileURL,
		ExpiresAt:   cred.ExpiresAt.UnixMilli(),
		Status:      string(cred.Status),
	})
}

func (h *LinkHandler) respondLinkError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrMissingUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "user is required."})
	case errors.Is(err, domain.ErrMissingCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "authorization code missing from callback."})
	case errors.Is(err, domain.ErrInvalidState):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_state", "error_description": "state parameter missing or not verifiable."})
	case errors.Is(err, domain.ErrCredentialNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "no tokens stored for this user."})
	case domain.IsExchangeKind(err, domain.ExchangeRejected):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": "Spotify rejected the authorization code."})
	case domain.IsExchangeKind(err, domain.ExchangeTransient), domain.IsExchangeKind(err, domain.ExchangeProtocol):
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_error", "error_description": "Spotify is unavailable, try again."})
	default:
		// Internal errors may carry connection strings or upstream detail;
		// they go to the log, not the client.
		zap.L().Error("link request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server_error", "error_description": "unexpected error."})
	}
}
