package webhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"posbridge/internal/bridge"
	"posbridge/internal/extract"
	"posbridge/internal/iiko"
	"posbridge/internal/tenant"
	"posbridge/pkg/logger"
)

// outcome is an order run rendered as a status and JSON body, so the
// payment webhook can reuse the order path without a fake response.
type outcome struct {
	Status int
	Body   fiber.Map
}

func (s *Server) handleOrder(c fiber.Ctx) error {
	reqID := requestID(c)
	fields, bodyKind, err := extract.ParseBody(c.Body())
	if err != nil {
		out := errorOutcome(reqID, nil, bridge.Invalid("body", err.Error()))
		return c.Status(out.Status).JSON(out.Body)
	}
	logger.WithRequest(reqID).WithField("body_kind", bodyKind.String()).Debug("order webhook received")

	if len(s.opts.Secrets) > 0 {
		provided := providedSecret(c, fields)
		if !secretMatches(provided, s.opts.Secrets) {
			logger.WithRequest(reqID).WithFields(logrus.Fields{
				"provided": digest(provided),
				"expected": digests(s.opts.Secrets),
			}).Warn("webhook secret mismatch")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"ok":        false,
				"requestId": reqID,
				"error":     "Unauthorized",
				"debug": fiber.Map{
					"providedSha256": digest(provided),
					"expectedSha256": digests(s.opts.Secrets),
				},
			})
		}
	}

	kind := Classify(func(h string) string { return c.Get(h) }, fields)
	s.opts.Metrics.Webhook(string(kind))
	if kind == KindProbe {
		return c.JSON(fiber.Map{"ok": true, "requestId": reqID, "probe": true})
	}

	ctx, cancel := s.requestContext()
	defer cancel()

	out := s.runOrder(ctx, reqID, fields, hintsFrom(c, fields))
	return c.Status(out.Status).JSON(out.Body)
}

// hintsFrom collects the tenant hints of a request. Body values win over
// the query string for project and page ids.
func hintsFrom(c fiber.Ctx, f extract.Fields) tenant.Hints {
	h := tenant.Hints{
		QueryCity: c.Query("city"),
		ProjectID: f.String(extract.ProjectIDKeys...),
		PageID:    f.String(extract.PageIDKeys...),
		BodyCity:  f.String(extract.CityKeys...),
		Referer:   f.String(extract.RefererKeys...),
		Host:      c.Get("X-Forwarded-Host"),
	}
	if h.ProjectID == "" {
		h.ProjectID = firstNonEmpty(c.Query("projectid"), c.Query("projectId"))
	}
	if h.PageID == "" {
		h.PageID = firstNonEmpty(c.Query("pageid"), c.Query("pageId"))
	}
	if h.Referer == "" {
		h.Referer = c.Get(fiber.HeaderReferer)
	}
	if h.Host == "" {
		h.Host = c.Get(fiber.HeaderHost)
	}
	return h
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (s *Server) runOrder(ctx context.Context, reqID string, fields extract.Fields, hints tenant.Hints) outcome {
	res, err := s.opts.Orders.Process(ctx, bridge.Request{RequestID: reqID, Fields: fields, Hints: hints})
	if err != nil {
		return errorOutcome(reqID, res, err)
	}

	unmapped := make([]fiber.Map, 0, len(res.Unmapped))
	for _, u := range res.Unmapped {
		unmapped = append(unmapped, fiber.Map{"name": u.Name, "modifierText": u.ModifierText, "raw": u.Raw})
	}
	return outcome{Status: fiber.StatusOK, Body: fiber.Map{
		"ok":            true,
		"requestId":     reqID,
		"city":          res.City,
		"action":        res.Action,
		"mappedItems":   res.MappedItems,
		"unmappedItems": unmapped,
		"iiko":          rawOrNull(res.POS),
	}}
}

func errorOutcome(reqID string, res *bridge.Result, err error) outcome {
	city := ""
	if res != nil {
		city = res.City
	}
	log := logger.WithRequest(reqID).WithField("city", city).WithError(err)

	var (
		unknown    *tenant.UnknownTenantError
		invalid    *bridge.ValidationError
		upstream   *iiko.APIError
		badRequest = fiber.Map{"ok": false, "requestId": reqID, "city": city}
	)
	switch {
	case errors.As(err, &unknown):
		badRequest["error"] = "Unknown city"
		log.Warn("order rejected")
		return outcome{Status: fiber.StatusBadRequest, Body: badRequest}
	case errors.Is(err, bridge.ErrUnmappedCatalog), errors.As(err, &invalid):
		badRequest["error"] = err.Error()
		log.Warn("order rejected")
		return outcome{Status: fiber.StatusBadRequest, Body: badRequest}
	case errors.As(err, &upstream):
		log.WithField("status", upstream.StatusCode).Error("iiko request failed")
		return outcome{Status: upstream.StatusCode, Body: fiber.Map{
			"ok":        false,
			"requestId": reqID,
			"error":     err.Error(),
			"iikoError": rawOrNull(upstream.Body),
		}}
	default:
		log.Error("order processing failed")
		return outcome{Status: fiber.StatusInternalServerError, Body: fiber.Map{
			"ok":        false,
			"requestId": reqID,
			"error":     err.Error(),
			"iikoError": nil,
		}}
	}
}

func rawOrNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
