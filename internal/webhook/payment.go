package webhook

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"posbridge/internal/extract"
	"posbridge/internal/gateway"
	"posbridge/internal/tenant"
	"posbridge/pkg/logger"
)

// handlePaymentWebhook accepts both gateway notifications and storefront
// submissions on one URL. Gateway events are always acknowledged with 200
// so the gateway does not retry on our own relay failures.
func (s *Server) handlePaymentWebhook(c fiber.Ctx) error {
	reqID := requestID(c)
	log := logger.WithRequest(reqID)

	fields, bodyKind, err := extract.ParseBody(c.Body())
	log = log.WithField("body_kind", bodyKind.String())
	if err != nil {
		log.WithError(err).Error("webhook body unreadable")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
	}

	kind := Classify(func(h string) string { return c.Get(h) }, fields)
	s.opts.Metrics.Webhook(string(kind))
	log = log.WithField("kind", kind)

	ctx, cancel := s.requestContext()
	defer cancel()

	switch kind {
	case KindGateway:
		intent := gateway.ParseEvent(fields)
		log = log.WithFields(logrus.Fields{"intent": intent.ID, "status": intent.Status, "orderId": intent.OrderID()})
		if !intent.Completed() {
			log.Info("gateway event ignored")
			return c.JSON(fiber.Map{"received": true})
		}
		if intent.OrderID() == "" {
			log.Warn("completed intent without storefront order id")
			return c.JSON(fiber.Map{"received": true})
		}
		if s.opts.Notifier != nil {
			status, err := s.opts.Notifier.Notify(ctx, intent)
			if err != nil {
				log.WithError(err).WithField("upstream", status).Error("storefront notification failed")
			} else {
				log.WithField("upstream", status).Info("storefront notified")
			}
		}
		if s.opts.PaymentCreatesOrder {
			out := s.runOrder(ctx, reqID, intent.OrderFields(), tenant.Hints{
				QueryCity: c.Query("city"),
				BodyCity:  intent.Metadata["city"],
			})
			log.WithFields(logrus.Fields{"orderStatus": out.Status, "action": out.Body["action"]}).Info("order from payment")
		}
		return c.JSON(fiber.Map{"received": true})

	case KindStorefront:
		out := s.runOrder(ctx, reqID, fields, hintsFrom(c, fields))
		log.WithField("orderStatus", out.Status).Info("storefront payload forwarded")
		return c.JSON(fiber.Map{"received": true, "orderStatus": out.Status, "order": out.Body})

	default:
		log.WithField("keys", fields.Keys()).Info("webhook acknowledged without action")
		return c.JSON(fiber.Map{"received": true})
	}
}

var (
	amountKeys    = []string{"amount", "AMOUNT"}
	orderKeys     = []string{"orderid", "order_id", "ORDERID", "orderId"}
	paymentIDKeys = []string{"payment_id", "PAYMENT_ID", "paymentid"}
	callbackKeys  = []string{"callback_url", "CALLBACK_URL"}
)

// handleInitPayment turns a storefront checkout form into a gateway
// payment intent and redirects the shopper to it.
func (s *Server) handleInitPayment(c fiber.Ctx) error {
	reqID := requestID(c)
	log := logger.WithRequest(reqID)

	fields, bodyKind, err := extract.ParseBody(c.Body())
	if err != nil {
		log.WithError(err).WithField("body_kind", bodyKind.String()).Warn("checkout body unreadable")
		return c.Status(fiber.StatusBadRequest).SendString("Invalid request body")
	}
	for key, v := range c.Queries() {
		if _, ok := fields[key]; !ok {
			fields[key] = v
		}
	}

	in := gateway.IntentRequest{
		Amount:      strings.TrimSpace(fields.String(amountKeys...)),
		OrderID:     strings.TrimSpace(fields.String(orderKeys...)),
		PaymentID:   fields.String(paymentIDKeys...),
		Name:        fields.String("name", "NAME", "Name"),
		Email:       fields.String("email", "EMAIL", "Email"),
		Phone:       fields.String("phone", "PHONE", "Phone"),
		CallbackURL: fields.String(callbackKeys...),
		CancelURL:   originURL(c) + "/orderfailed",
	}
	if in.Amount == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing amount")
	}
	if in.OrderID == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing orderid")
	}
	if s.opts.Gateway == nil {
		return c.Status(fiber.StatusInternalServerError).SendString("Configuration Error: Missing Ziina Token")
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	redirect, err := s.opts.Gateway.CreateIntent(ctx, in)
	switch {
	case errors.Is(err, gateway.ErrMissingToken):
		return c.Status(fiber.StatusInternalServerError).SendString("Configuration Error: Missing Ziina Token")
	case errors.Is(err, gateway.ErrNoRedirect):
		log.WithField("orderId", in.OrderID).Error("gateway returned no redirect")
		return c.Status(fiber.StatusInternalServerError).SendString("Failed to initiate payment: No redirect URL")
	case err != nil:
		log.WithError(err).WithField("orderId", in.OrderID).Error("payment intent failed")
		return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error: " + err.Error())
	}

	log.WithField("orderId", in.OrderID).Info("payment intent created")
	return c.Redirect().Status(fiber.StatusSeeOther).To(redirect)
}

func originURL(c fiber.Ctx) string {
	proto := c.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "https"
	}
	host := c.Get("X-Forwarded-Host")
	if host == "" {
		host = c.Get(fiber.HeaderHost)
	}
	return proto + "://" + host
}
