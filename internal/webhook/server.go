package webhook

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/google/uuid"

	"posbridge/internal/bridge"
	"posbridge/internal/gateway"
	"posbridge/internal/metrics"
	"posbridge/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// OrderProcessor runs one storefront order through the POS.
type OrderProcessor interface {
	Process(ctx context.Context, req bridge.Request) (*bridge.Result, error)
}

// IntentCreator starts a gateway checkout.
type IntentCreator interface {
	CreateIntent(ctx context.Context, in gateway.IntentRequest) (string, error)
}

// PaymentNotifier confirms a completed payment to the storefront.
type PaymentNotifier interface {
	Notify(ctx context.Context, p gateway.PaymentIntent) (int, error)
}

// Options wires the HTTP layer to its collaborators. Gateway and Notifier
// may be nil when the payment flow is not deployed.
type Options struct {
	Orders              OrderProcessor
	Gateway             IntentCreator
	Notifier            PaymentNotifier
	Metrics             *metrics.Registry
	Secrets             []string
	PaymentCreatesOrder bool
	RequestTimeout      time.Duration
}

type Server struct {
	app  *fiber.App
	opts Options
}

func NewServer(opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	s := &Server{opts: opts}

	s.app = fiber.New(fiber.Config{
		AppName:      "posbridge",
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: opts.RequestTimeout + 5*time.Second,
		ErrorHandler: s.handleError,
	})

	s.app.Use(requestid.New(requestid.Config{
		Header:    requestIDHeader,
		Generator: uuid.NewString,
	}))
	s.app.Use(recover.New())

	s.app.All("/api/tilda-iiko", postOnly(s.handleOrder))
	s.app.All("/api/webhook", postOnly(s.handlePaymentWebhook))
	s.app.All("/api/init-payment", postOnly(s.handleInitPayment))
	s.app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	if opts.Metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(opts.Metrics.Handler()))
	}
	return s
}

// App exposes the router, mainly for tests.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func postOnly(h fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Method() != fiber.MethodPost {
			return c.Status(fiber.StatusMethodNotAllowed).SendString("Method Not Allowed")
		}
		return h(c)
	}
}

func requestID(c fiber.Ctx) string {
	return c.GetRespHeader(requestIDHeader)
}

// requestContext bounds the outbound work of one request.
func (s *Server) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opts.RequestTimeout)
}

func (s *Server) handleError(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	logger.WithRequest(requestID(c)).WithFields(map[string]interface{}{
		"path":   c.Path(),
		"method": c.Method(),
		"code":   code,
	}).WithError(err).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"ok":        false,
		"requestId": requestID(c),
		"error":     message,
	})
}
