package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-taskauth/middleware/jwtware"
)

// DecisionListener aliases the jwtware listener so consumers can use auth helpers directly.
type DecisionListener = jwtware.DecisionListener

// RegisterDecisionListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterDecisionListeners(cfg *jwtware.Config, listeners ...DecisionListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	for _, l := range listeners {
		if l != nil {
			cfg.DecisionListeners = append(cfg.DecisionListeners, l)
		}
	}
}

// LoggingDecisionListener logs every gate decision at debug level
func LoggingDecisionListener(logger Logger) DecisionListener {
	logger = normalizeLogger(logger)
	return func(c *fiber.Ctx, d jwtware.Decision) {
		logger.Debug("gate decision",
			"decision", string(d),
			"method", c.Method(),
			"path", c.Path(),
		)
	}
}
