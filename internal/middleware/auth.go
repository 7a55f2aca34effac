package middleware

import (
	"fmt"
	"net/http"

	"lessontalk/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const CallerKey = "caller"

// Session keys written by the sign-in service that shares this cookie store.
const (
	SessionUserID = "user_id"
	SessionRole   = "role"
)

// LoadCaller reads the signed-in identity from the session and stores it on
// the context. Anonymous requests get a zero Caller.
func LoadCaller(elevatedRoles []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		var caller services.Caller
		if userID := session.Get(SessionUserID); userID != nil {
			caller.UserID = fmt.Sprint(userID)
			if role, ok := session.Get(SessionRole).(string); ok {
				caller.Role = role
			}
			caller.Elevated = services.ElevatedFor(caller.Role, elevatedRoles)
		}
		c.Set(CallerKey, caller)
		c.Next()
	}
}

// CurrentCaller returns the caller LoadCaller stored, or a zero Caller.
func CurrentCaller(c *gin.Context) services.Caller {
	if v, ok := c.Get(CallerKey); ok {
		if caller, ok := v.(services.Caller); ok {
			return caller
		}
	}
	return services.Caller{}
}

// AuthRequired rejects anonymous callers with a JSON 401.
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentCaller(c).Anonymous() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":  "unauthorized",
				"error": "sign in required",
			})
			return
		}
		c.Next()
	}
}
