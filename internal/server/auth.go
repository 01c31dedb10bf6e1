package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/scalehq/entitlements/internal/user/domain"
)

type tokenRequest struct {
	UserID           string `json:"userId" binding:"required"`
	ExtensionVersion string `json:"extensionVersion"`
	InstallationID   string `json:"installationId"`
	Source           string `json:"source"`
}

// IssueToken creates the user on first contact and mints a bearer token.
func (s *Server) IssueToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.users.EnsureUser(c.Request.Context(), userdomain.EnsureUserRequest{
		UserID: req.UserID,
		Metadata: userdomain.ClientMetadata{
			ExtensionVersion: req.ExtensionVersion,
			InstallationID:   req.InstallationID,
			Source:           req.Source,
		},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, string(user.Tier))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      viewOf(user),
	})
}

type refreshRequest struct {
	UserID string `json:"userId" binding:"required"`
}

// RefreshToken reissues a token for an existing user.
func (s *Server) RefreshToken(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	user, err := s.users.Get(c.Request.Context(), req.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, string(user.Tier))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      viewOf(user),
	})
}
