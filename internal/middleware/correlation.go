package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// Correlation headers. Requests may send either; responses and published completion
// events always carry HeaderCorrelationID.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"

	localCorrelationID = "correlation_id"
	maxCorrelationLen  = 128
)

type correlationKey struct{}

// CorrelationID tags every request with an identifier, reusing the caller's when it
// sends a usable one.
func CorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := sanitizeCorrelation(c.Get(HeaderCorrelationID))
		if id == "" {
			id = sanitizeCorrelation(c.Get(HeaderRequestID))
		}
		if id == "" {
			id = uuid.NewString()
		}

		c.Locals(localCorrelationID, id)
		c.Set(HeaderCorrelationID, id)
		c.SetUserContext(ContextWithCorrelation(c.UserContext(), id))

		return c.Next()
	}
}

// NewJobCorrelation starts a correlated context for work that does not come from an
// HTTP request, such as the cron tick or the jobs CLI. The id is prefixed with source.
func NewJobCorrelation(ctx context.Context, source string) (context.Context, string) {
	id := source + "-" + uuid.NewString()
	return ContextWithCorrelation(ctx, id), id
}

// ContextWithCorrelation binds a correlation id to ctx. Blank ids leave ctx unchanged.
func ContextWithCorrelation(ctx context.Context, correlationID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	id := sanitizeCorrelation(correlationID)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the id bound by ContextWithCorrelation, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// GetCorrelationID returns the correlation id of the active request.
func GetCorrelationID(c *fiber.Ctx) string {
	if c == nil {
		return ""
	}
	if id, ok := c.Locals(localCorrelationID).(string); ok && id != "" {
		return id
	}
	return CorrelationIDFromContext(c.UserContext())
}

func sanitizeCorrelation(value string) string {
	value = strings.TrimSpace(value)
	if len(value) > maxCorrelationLen {
		value = value[:maxCorrelationLen]
	}
	return value
}
