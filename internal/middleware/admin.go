package middleware

import (
	"net/http" // HTTP status codes
	"slices"   // Role lookup

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library

	"credit_ledger/internal/domain" // Importing domain models
	"credit_ledger/internal/utils"  // Security logging
)

// RequireRoles checks the user's role from the database on each request, so a
// demoted user loses access before their token expires. On success the
// authenticated actor is stored under "actor".
func RequireRoles(db *gorm.DB, roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "Unauthorized"})
			return
		}
		var user domain.User // Fetch user from database
		if err := db.WithContext(c.Request.Context()).Select("id", "role").First(&user, userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied", "code": "Forbidden"})
			return
		}
		// Check the stored role, never the token claim
		if !slices.Contains(roles, user.Role) {
			utils.SecurityEvent("role_denied", "medium", logrus.Fields{
				"user_id":    user.ID,
				"role":       user.Role,
				"path":       c.FullPath(),
				"request_id": c.GetString(RequestIDKey),
			})
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied", "code": "Forbidden"})
			return
		}
		c.Set("actor", domain.Actor{ID: user.ID, Role: user.Role}) // Store actor in context
		c.Next()
	}
}
