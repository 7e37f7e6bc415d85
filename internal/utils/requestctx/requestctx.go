package requestctx

import (
	"github.com/gin-gonic/gin"
)

// Keys stored on the gin context by middleware.
const (
	KeyRequestID = "request_id"
	KeyUserID    = "user_id"
	KeyUserEmail = "user_email"
	KeyDeviceID  = "device_id"
	KeyGuestID   = "guest_id"
)

// RequestID returns the request id assigned by the request-id middleware.
func RequestID(c *gin.Context) string {
	if v, ok := c.Get(KeyRequestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// UserID returns the authenticated user id, if any.
func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(KeyUserID)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// UserEmail returns the authenticated user's email, if present in the token.
func UserEmail(c *gin.Context) (string, bool) {
	v, ok := c.Get(KeyUserEmail)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// DeviceID returns the client device id from the x-device-id header.
func DeviceID(c *gin.Context) string {
	if v, ok := c.Get(KeyDeviceID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GuestID returns the guest id from the x-guest-id header.
func GuestID(c *gin.Context) string {
	if v, ok := c.Get(KeyGuestID); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
