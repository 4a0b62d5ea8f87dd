package http

import (
	"time"

	"scheduler_server/core/domain"
	"scheduler_server/infra/middleware"
	"scheduler_server/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// APIResponse is the success envelope. Errors use middleware.ErrorResponse.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

// SuccessResponse sends data in the standard envelope.
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// requireIdentity returns the authenticated caller or an Unauthorized error
// for the central error handler.
func requireIdentity(c *fiber.Ctx) (domain.Identity, error) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok || identity.ID == "" {
		return domain.Identity{}, apperr.Unauthorized("authentication required")
	}
	return identity, nil
}
