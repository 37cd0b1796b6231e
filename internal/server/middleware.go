package server

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog"

	"linkgate/internal/linking/handler"
	"linkgate/internal/server/interceptors"
)

// BearerAuth rejects requests whose Authorization header does not carry apiKey.
func BearerAuth(apiKey string) fiber.Handler {
	want := []byte(apiKey)
	return func(c *fiber.Ctx) error {
		token := interceptors.BearerToken(c.Get(fiber.HeaderAuthorization))
		if token == "" || len(want) == 0 || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			return handler.WriteError(c, fiber.StatusUnauthorized, "Unauthorized", "invalid or missing API key")
		}
		return c.Next()
	}
}

// RateLimit allows max requests per client address in a sliding window.
func RateLimit(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               max,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      clientIP,
		LimitReached: func(c *fiber.Ctx) error {
			return handler.WriteError(c, fiber.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded")
		},
	})
}

// ClientIP stores the caller address in Locals. Proxy headers are honoured only when trustProxy is set.
func ClientIP(trustProxy bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(handler.LocalsClientIP, resolveIP(c, trustProxy))
		return c.Next()
	}
}

func resolveIP(c *fiber.Ctx, trustProxy bool) string {
	if trustProxy {
		if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if s := strings.TrimSpace(first); s != "" {
				return s
			}
		}
		if s := strings.TrimSpace(c.Get("X-Real-IP")); s != "" {
			return s
		}
	}
	return c.IP()
}

func clientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(handler.LocalsClientIP).(string); ok && ip != "" {
		return ip
	}
	return c.IP()
}

// SecurityHeaders sets the hardening headers on every response.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		setSecurityHeaders(c)
		return c.Next()
	}
}

func setSecurityHeaders(c *fiber.Ctx) {
	c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
	c.Set(fiber.HeaderXFrameOptions, "DENY")
	c.Set(fiber.HeaderXXSSProtection, "1; mode=block")
}

// RequestLogger logs requests that failed or took at least slow.
func RequestLogger(log zerolog.Logger, slow time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		latency := time.Since(start)
		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		if status < fiber.StatusBadRequest && latency < slow {
			return err
		}

		ev := log.Info()
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error()
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		}
		ev.Int("status", status).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", clientIP(c)).
			Dur("latency", latency).
			Msg("http request")
		return err
	}
}
