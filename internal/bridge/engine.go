package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"posbridge/internal/catalog"
	"posbridge/internal/events"
	"posbridge/internal/extract"
	"posbridge/internal/iiko"
	"posbridge/internal/metrics"
	"posbridge/internal/tenant"
	"posbridge/models"
	"posbridge/pkg/logger"
)

// Actions reported in Result.Action
const (
	ActionCreated        = "created"
	ActionPaymentApplied = "payment_applied"
)

const publishTimeout = 5 * time.Second

// POS is the subset of the iiko API the engine drives.
type POS interface {
	Token(ctx context.Context, apiLogin string) (string, error)
	CreateDelivery(ctx context.Context, token string, req iiko.DeliveryCreateRequest) (iiko.Response, error)
	FindDeliveries(ctx context.Context, token string, req iiko.SearchRequest) ([]iiko.DeliverySummary, error)
	ChangePayments(ctx context.Context, token string, req iiko.ChangePaymentsRequest) (iiko.Response, error)
}

// CacheStore holds the process-wide caches the engine reads. It is built
// once at startup and shared by every request. POS tokens are cached by the
// iiko client itself.
type CacheStore struct {
	Catalog *catalog.Cache
}

// ReconcileWindow bounds the existing-order search around now.
type ReconcileWindow struct {
	Lookback time.Duration
	Ahead    time.Duration
	Rows     int
}

// Request is one storefront order submission.
type Request struct {
	RequestID string
	Fields    extract.Fields
	Hints     tenant.Hints
}

// Result describes a processed order. City is set as soon as the tenant
// is known, also when an error is returned.
type Result struct {
	RequestID   string
	City        string
	Action      string
	MappedItems int
	Unmapped    []models.UnmappedLine
	POSOrderID  string
	POS         json.RawMessage
}

type Engine struct {
	resolver  *tenant.Resolver
	caches    *CacheStore
	pos       POS
	publisher events.Publisher
	metrics   *metrics.Registry
	window    ReconcileWindow
	now       func() time.Time
}

func NewEngine(resolver *tenant.Resolver, caches *CacheStore, pos POS, publisher events.Publisher, m *metrics.Registry, window ReconcileWindow) *Engine {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &Engine{
		resolver:  resolver,
		caches:    caches,
		pos:       pos,
		publisher: publisher,
		metrics:   m,
		window:    window,
		now:       time.Now,
	}
}

// Process turns one storefront request into a POS order, or applies its
// payment to an order created earlier. The returned Result is never nil.
func (e *Engine) Process(ctx context.Context, req Request) (*Result, error) {
	res := &Result{RequestID: req.RequestID}
	log := logger.WithRequest(req.RequestID)

	t, err := e.resolver.Resolve(req.Hints)
	if err != nil {
		var unknown *tenant.UnknownTenantError
		if errors.As(err, &unknown) {
			res.City = unknown.Key
		}
		log.WithError(err).Warn("tenant not resolved")
		return res, err
	}
	res.City = t.Key

	order := extract.Extract(req.Fields)
	evt := models.OrderSyncEvent{
		RequestID: req.RequestID,
		City:      t.Key,
		Paid:      order.Paid,
	}
	if order.Total.Valid {
		evt.Total = order.Total.Decimal.String()
	}

	err = e.process(ctx, t, order, res, &evt, log)
	evt.MappedItems = res.MappedItems
	evt.UnmappedItems = len(res.Unmapped)
	evt.Unmapped = res.Unmapped
	evt.POSOrderID = res.POSOrderID
	if err != nil {
		evt.Event = models.SyncEventFailed
		evt.Error = err.Error()
	} else {
		evt.Event = res.Action
	}
	e.publish(evt, log)
	return res, err
}

func (e *Engine) process(ctx context.Context, t models.Tenant, order models.CanonicalOrder, res *Result, evt *models.OrderSyncEvent, log *logrus.Entry) error {
	rows, err := e.caches.Catalog.Rows(ctx)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	items := catalog.ParseProducts(order.Products)
	draft, err := Build(t, order, items, rows, e.now())
	if err != nil {
		return err
	}
	evt.ExternalNumber = draft.ExternalNumber
	res.MappedItems = draft.MappedItems
	for _, u := range draft.Unmapped {
		res.Unmapped = append(res.Unmapped, models.UnmappedLine{Name: u.Name, ModifierText: u.ModifierText, Raw: u.Raw})
	}
	e.metrics.Unmapped(len(draft.Unmapped))

	log = log.WithFields(logrus.Fields{
		"city":            t.Key,
		"external_number": draft.ExternalNumber,
		"mapped":          draft.MappedItems,
		"unmapped":        len(draft.Unmapped),
	})
	if draft.UsedFallback {
		log.Warn("no line item matched the catalog, using fallback product")
	}
	if draft.CourierDenied {
		log.Warn("courier requested without a usable address, created as pickup")
	}

	token, err := e.pos.Token(ctx, t.APILogin)
	if err != nil {
		return fmt.Errorf("iiko token: %w", err)
	}

	payment, reconcile := e.payment(t, order)
	if reconcile && order.OrderID != "" && draft.Request.Order.Phone != "" {
		existing, err := e.findExisting(ctx, token, t, draft)
		if err != nil {
			return err
		}
		if existing != nil {
			out, err := e.pos.ChangePayments(ctx, token, iiko.ChangePaymentsRequest{
				OrganizationID: t.OrganizationID,
				OrderID:        existing.ID,
				Payments:       []iiko.Payment{payment},
			})
			if err != nil {
				return fmt.Errorf("iiko change payments: %w", err)
			}
			res.Action = ActionPaymentApplied
			res.POSOrderID = existing.ID
			res.POS = json.RawMessage(out)
			e.metrics.PaymentApplied(t.Key)
			log.WithField("pos_order_id", existing.ID).Info("✓ Payment applied to existing POS order")
			return nil
		}
	}
	if reconcile {
		draft.Request.Order.Payments = []iiko.Payment{payment}
	}

	out, err := e.pos.CreateDelivery(ctx, token, draft.Request)
	if err != nil {
		return fmt.Errorf("iiko create delivery: %w", err)
	}
	res.Action = ActionCreated
	res.POS = json.RawMessage(out)
	res.POSOrderID = createdOrderID(out)
	e.metrics.OrderCreated(t.Key)
	log.WithField("paid", reconcile).Info("✓ POS order created")
	return nil
}

// payment builds the externally processed payment entry. It reports false
// when the order is unpaid, the tenant has no payment type or the total is
// not a positive amount.
func (e *Engine) payment(t models.Tenant, order models.CanonicalOrder) (iiko.Payment, bool) {
	if !order.Paid || t.PaymentTypeID == "" || !order.Total.Valid || !order.Total.Decimal.IsPositive() {
		return iiko.Payment{}, false
	}
	return iiko.Payment{
		PaymentTypeKind:       t.PaymentKind(),
		Sum:                   order.Total.Decimal.InexactFloat64(),
		PaymentTypeID:         t.PaymentTypeID,
		IsProcessedExternally: true,
	}, true
}

// findExisting looks for an order with the same phone and external number
// inside the reconciliation window. Orders whose creation failed upstream
// do not count.
func (e *Engine) findExisting(ctx context.Context, token string, t models.Tenant, d *Draft) (*iiko.DeliverySummary, error) {
	now := e.now()
	found, err := e.pos.FindDeliveries(ctx, token, iiko.SearchRequest{
		Phone:            d.Request.Order.Phone,
		DeliveryDateFrom: now.Add(-e.window.Lookback).Format(iiko.SearchTimeLayout),
		DeliveryDateTo:   now.Add(e.window.Ahead).Format(iiko.SearchTimeLayout),
		OrganizationIDs:  []string{t.OrganizationID},
		RowsCount:        e.window.Rows,
	})
	if err != nil {
		return nil, fmt.Errorf("iiko search deliveries: %w", err)
	}
	for i := range found {
		o := found[i]
		if o.ExternalNumber == d.ExternalNumber && o.ID != "" && o.CreationStatus != "Error" {
			return &o, nil
		}
	}
	return nil, nil
}

func (e *Engine) publish(evt models.OrderSyncEvent, log *logrus.Entry) {
	evt.OccurredAt = e.now().UTC()
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := e.publisher.Publish(ctx, evt); err != nil {
		log.WithError(err).Warn("failed to publish order sync event")
	}
}

// createdOrderID digs the POS order id out of a create reply, if present.
func createdOrderID(raw []byte) string {
	var reply struct {
		OrderInfo struct {
			ID string `json:"id"`
		} `json:"orderInfo"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return ""
	}
	return reply.OrderInfo.ID
}
