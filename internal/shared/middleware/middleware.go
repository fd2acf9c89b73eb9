package middleware

import (
	"net/http"
	"strings"
	"time"

	"ticketflow/internal/shared/apperror"
	"ticketflow/internal/shared/utils/response"
	"ticketflow/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	ContextAttendeeID    = "attendee_id"
	ContextAttendeeEmail = "attendee_email"
	ContextRole          = "user_role"

	RoleAttendee = "ATTENDEE"
	RoleScanner  = "SCANNER"
	RoleAdmin    = "ADMIN"
)

// Claims are issued by the identity service; this service only verifies them
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Type   string `json:"type"`
	jwt.RegisteredClaims
}

// JWTAuth verifies an HS256 bearer token and stores the caller in the context
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Authorization header is required", nil, nil)
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "authorization header format must be Bearer {token}", nil, nil)
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid or expired token", nil, nil)
			c.Abort()
			return
		}

		if claims.Type != "access" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token type", nil, nil)
			c.Abort()
			return
		}

		attendeeID, err := uuid.Parse(claims.UserID)
		if err != nil {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "invalid token subject", nil, nil)
			c.Abort()
			return
		}

		role := claims.Role
		if role == "" {
			role = RoleAttendee
		}

		c.Set(ContextAttendeeID, attendeeID)
		c.Set(ContextAttendeeEmail, claims.Email)
		c.Set(ContextRole, role)
		c.Next()
	}
}

// RequireRoles middleware checks if user has any of the required roles
func RequireRoles(requiredRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(ContextRole)
		if userRole == "" {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "user role not found in context", nil, nil)
			c.Abort()
			return
		}

		for _, role := range requiredRoles {
			if userRole == role {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// AttendeeID returns the authenticated attendee
func AttendeeID(c *gin.Context) (uuid.UUID, error) {
	value, ok := c.Get(ContextAttendeeID)
	if !ok {
		return uuid.Nil, apperror.BadRequest("attendee not found in context")
	}
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, apperror.BadRequest("attendee not found in context")
	}
	return id, nil
}

func AttendeeEmail(c *gin.Context) string {
	return c.GetString(ContextAttendeeEmail)
}

const HeaderRequestID = "X-Request-ID"

// RequestLogger logs every request after it completes, tagged with the
// caller's X-Request-ID or a fresh one echoed back in the response.
func RequestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)

		c.Next()
		l.WithRequestID(requestID).LogHTTPRequest(c, time.Since(start))
	}
}
