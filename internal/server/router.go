package server

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/objcache/internal/logging"
)

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger   *logrus.Logger
	Registry *CollectionRegistry
}

const (
	contextKeyCollection = "_objcache_collection"
	contextKeyRequestID  = "_objcache_request_id"
)

// NewApp builds a Fiber application with request ID, collection lookup and
// access log middleware. Handlers are attached by the routes package.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("collection registry is required")
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		ErrorHandler:  errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts))

	return app, nil
}

// requestContextMiddleware 负责生成请求 ID，并根据路径首段查找 Collection，最后输出访问日志。
func requestContextMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		path := string(c.Request().URI().Path())
		name := ""
		if !isDiagnosticsPath(path) {
			name = collectionSegment(path)
			col, ok := opts.Registry.Lookup(name)
			if !ok {
				return renderCollectionNotFound(c, opts.Logger, name)
			}
			c.Locals(contextKeyCollection, col)
		}

		err := c.Next()
		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}
		opts.Logger.WithFields(logging.RequestFields(reqID, name, c.Method(), path, status)).Info("request")
		return err
	}
}

func renderCollectionNotFound(c fiber.Ctx, logger *logrus.Logger, name string) error {
	logger.WithFields(logrus.Fields{
		"action":     "collection_lookup",
		"collection": name,
	}).Warn("collection unknown")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "collection_not_found",
	})
}

// errorHandler 将未处理的错误统一渲染为 JSON，并保留 fiber.Error 的状态码。
func errorHandler(logger *logrus.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "internal_error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		} else {
			logger.WithFields(logrus.Fields{
				"action":     "request_error",
				"request_id": RequestID(c),
			}).WithError(err).Error("handler failed")
		}
		return c.Status(code).JSON(fiber.Map{"error": message})
	}
}

// CollectionFromContext returns the Collection resolved by the router middleware.
func CollectionFromContext(c fiber.Ctx) (*Collection, bool) {
	if value := c.Locals(contextKeyCollection); value != nil {
		if col, ok := value.(*Collection); ok {
			return col, true
		}
	}
	return nil, false
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func collectionSegment(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.IndexByte(trimmed, '/'); idx >= 0 {
		return trimmed[:idx]
	}
	return trimmed
}

func isDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
