// Package server assembles the HTTP and gRPC servers.
package server

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/rs/zerolog"

	"linkgate/internal/linking/handler"
)

// HTTPOptions configures the HTTP control plane.
type HTTPOptions struct {
	Version           string
	APIKey            string
	BodyLimit         int
	RateRequests      int
	RateWindow        time.Duration
	TrustProxyHeaders bool
	// SlowRequest is the latency from which successful requests are logged.
	SlowRequest time.Duration
}

// NewHTTP returns the fiber app serving h under /api.
func NewHTTP(opts HTTPOptions, h *handler.LinkHandler, log zerolog.Logger) *fiber.App {
	log = log.With().Str("component", "http").Logger()
	if opts.SlowRequest <= 0 {
		opts.SlowRequest = 500 * time.Millisecond
	}
	app := fiber.New(fiber.Config{
		AppName:               "linkgate",
		ServerHeader:          "linkgate/" + opts.Version,
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler(log),
	})

	app.Use(recover.New())
	app.Use(SecurityHeaders())
	app.Use(RequestLogger(log, opts.SlowRequest))
	app.Use(ClientIP(opts.TrustProxyHeaders))

	h.Register(app.Group("/api"), RateLimit(opts.RateRequests, opts.RateWindow), BearerAuth(opts.APIKey))
	return app
}

func errorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		}
		setSecurityHeaders(c)
		return handler.WriteError(c, code, statusMessage(code), "")
	}
}

func statusMessage(code int) string {
	switch code {
	case fiber.StatusNotFound:
		return "Not found"
	case fiber.StatusMethodNotAllowed:
		return "Method not allowed"
	case fiber.StatusRequestEntityTooLarge:
		return "Request Entity Too Large"
	case fiber.StatusInternalServerError:
		return "Internal server error"
	}
	return utils.StatusMessage(code)
}
