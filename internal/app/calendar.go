package app

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"availability-service/internal/apperr"
)

const oauthStateTTL = 10 * time.Minute

// GET /api/calendar/auth
// Starts the OAuth2 flow for the authenticated user. Service tokens name the
// user with ?user_id=.
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if a.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return
	}
	p, _ := principal(c)
	userID := p.UserID
	if p.Service {
		userID = c.Query("user_id")
	}
	if userID == "" {
		badRequest(c, "user_id required")
		return
	}

	state, err := a.Auth.SignState(userID, oauthStateTTL)
	if err != nil {
		a.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"auth_url": a.Calendar.AuthURL(state),
		"state":    state,
	})
}

// GET /oauth2callback
// Stores the owner's token. The state parameter identifies the owner.
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if a.Calendar == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Google Calendar not configured"})
		return
	}
	if e := c.Query("error"); e != "" {
		badRequest(c, "authorization denied: "+e)
		return
	}
	code := c.Query("code")
	if code == "" {
		badRequest(c, "authorization code required")
		return
	}
	userID, err := a.Auth.VerifyState(c.Query("state"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired state", "code": apperr.KindValidation})
		return
	}

	if err := a.Calendar.Exchange(c.Request.Context(), userID, code); err != nil {
		a.respondError(c, err)
		return
	}
	a.Log.Info("calendar connected", zap.String("request_id", requestID(c)), zap.String("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"message": "Authorization successful"})
}
