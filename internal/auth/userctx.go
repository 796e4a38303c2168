package auth

import (
	"net/http"
	"strings"

	fbauth "firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"

	"github.com/querypad/querypad-backend/internal/users"
)

const (
	CtxAuthUID  = "auth_uid"
	CtxUserDBID = "user_db_id"
)

// WithUser resolves the caller's identity, upserts the user row and puts
// the internal user id on both the gin context and the request context.
//
// With a Firebase client it verifies the Bearer ID token; without one it
// falls back to the X-User-Id header for development.
func WithUser(userRepo *users.Repo, authClient *fbauth.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, email, name, ok := identify(c, authClient)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "missing or invalid credentials"})
			c.Abort()
			return
		}

		dbID, err := userRepo.EnsureUser(c.Request.Context(), users.UpsertUser{
			AuthUID:     uid,
			Email:       email,
			DisplayName: name,
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "ensure user: " + err.Error()})
			c.Abort()
			return
		}

		c.Set(CtxAuthUID, uid)
		c.Set(CtxUserDBID, dbID)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), dbID))
		c.Next()
	}
}

func identify(c *gin.Context, authClient *fbauth.Client) (uid, email, name string, ok bool) {
	if authClient == nil {
		uid = strings.TrimSpace(c.GetHeader("X-User-Id"))
		if uid == "" {
			uid = "demo-user"
		}
		return uid, c.GetHeader("X-User-Email"), c.GetHeader("X-User-Name"), true
	}

	token := extractBearer(c)
	if token == "" {
		return "", "", "", false
	}

	decoded, err := authClient.VerifyIDToken(c.Request.Context(), token)
	if err != nil {
		return "", "", "", false
	}

	uid = decoded.UID
	if v, found := decoded.Claims["email"].(string); found {
		email = v
	}
	if v, found := decoded.Claims["name"].(string); found {
		name = v
	}
	return uid, email, name, true
}

func extractBearer(c *gin.Context) string {
	bearerToken := c.GetHeader("Authorization")
	if strings.HasPrefix(bearerToken, "Bearer ") {
		return bearerToken[7:]
	}
	return ""
}

// UserDBID returns the internal user id set by WithUser.
func UserDBID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxUserDBID))
}
