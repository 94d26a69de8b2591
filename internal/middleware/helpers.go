// internal/middleware/helpers.go
package middleware

import "github.com/gin-gonic/gin"

// GetActorID gets the authenticated actor's identity from context.
func GetActorID(c *gin.Context) string {
	actor, exists := c.Get("actor_id")
	if !exists {
		return ""
	}

	id, ok := actor.(string)
	if !ok {
		return ""
	}

	return id
}

// GetRoles gets the actor's roles from context.
func GetRoles(c *gin.Context) []string {
	roles, exists := c.Get("roles")
	if !exists {
		return []string{}
	}

	rolesList, ok := roles.([]string)
	if !ok {
		return []string{}
	}

	return rolesList
}

// HasRole checks whether the actor holds the given role.
func HasRole(c *gin.Context, role string) bool {
	for _, r := range GetRoles(c) {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin checks if the actor is an administrator.
func IsAdmin(c *gin.Context) bool {
	return HasRole(c, "admin") || HasRole(c, "super_admin")
}
