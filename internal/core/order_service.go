package core

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ScanConfirmedMessage accompanies every successful confirmation.
const ScanConfirmedMessage = "Order confirmed successfully"

// createAttempts bounds how often a creation is repeated after a code
// collision is caught by the unique constraint.
const createAttempts = 3

// OrderService runs the order lifecycle: create, confirm by scan, cancel,
// plus the scoped read paths.
type OrderService interface {
	// CreateOrder validates stock without reserving it and persists a PENDING order.
	CreateOrder(ctx context.Context, p Principal, req CreateOrderRequest) (*Order, error)
	// ScanOrder confirms the order carrying code and decrements stock for every
	// item, all or nothing.
	ScanOrder(ctx context.Context, p Principal, code string) (*ScanResult, error)
	// CancelOrder moves a PENDING order to CANCELLED. Stock is untouched.
	CancelOrder(ctx context.Context, p Principal, orderID int64) (*Order, error)
	GetOrder(ctx context.Context, p Principal, orderID int64) (*Order, error)
	ListOrders(ctx context.Context, p Principal, f OrderFilter) ([]OrderSummary, error)
}

type orderService struct {
	store   Store
	codes   *CodeGenerator
	policy  Policy
	logger  *zap.Logger
	tracer  trace.Tracer
	metrics orderMetrics
	now     func() time.Time
}

// NewOrderService constructs an OrderService over store.
func NewOrderService(store Store, codes *CodeGenerator, logger *zap.Logger, opts ...Option) OrderService {
	if codes == nil {
		codes = NewCodeGenerator(DefaultCodeLength, DefaultCodeMaxAttempts)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &orderService{
		store:   store,
		codes:   codes,
		logger:  logger,
		tracer:  otel.Tracer(instrumentationName),
		metrics: newOrderMetrics(otel.Meter(instrumentationName)),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ── Create ──────────────────────────────────────────────────────────────────

func (s *orderService) CreateOrder(ctx context.Context, p Principal, req CreateOrderRequest) (order *Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.create",
		attribute.Int64("branch.id", req.BranchID),
		attribute.Int("order.items", len(req.Items)),
	)
	defer func() { endSpan(span, err) }()

	if err := s.policy.Require(p, ActionCreate); err != nil {
		return nil, err
	}
	if err := validateItems(req.Items); err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		order, err = s.createOnce(ctx, p, req)
		if err == nil || !errors.Is(err, ErrConflict) || attempt == createAttempts {
			break
		}
		s.logger.Warn("order creation conflicted, retrying",
			zap.Int("attempt", attempt), zap.Error(err))
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.created.Add(ctx, 1)
	s.logger.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("branch_id", order.BranchID),
		zap.Int64("user_id", order.UserID),
		zap.String("total", order.TotalAmount.StringFixed(2)),
	)
	return order, nil
}

func (s *orderService) createOnce(ctx context.Context, p Principal, req CreateOrderRequest) (*Order, error) {
	var order *Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		branch, err := tx.Catalog().GetBranch(ctx, req.BranchID)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(p, ActionCreate, Resource{BranchID: branch.ID, PharmacyID: branch.PharmacyID}); err != nil {
			return err
		}

		items := make([]OrderItem, 0, len(req.Items))
		total := decimal.Zero
		for _, in := range req.Items {
			item, err := s.priceItem(ctx, tx, in)
			if err != nil {
				return err
			}

			// Advisory only: nothing is held until the order is scanned.
			ok, current, err := tx.Inventory().CheckAvailable(ctx, item.StockKey(branch.ID), in.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return InsufficientStock(in.DrugID, in.VariantID, current, in.Quantity)
			}

			total = total.Add(item.Subtotal)
			items = append(items, item)
		}

		code, err := s.codes.GenerateUnique(ctx, tx.Orders().CodeExists)
		if err != nil {
			return err
		}

		o := &Order{
			OrderNumber: code,
			Barcode:     code,
			BranchID:    branch.ID,
			UserID:      p.ID,
			Status:      OrderStatusPending,
			TotalAmount: total.Round(2),
		}
		if err := tx.Orders().CreateOrder(ctx, o); err != nil {
			return err
		}
		if err := tx.Orders().CreateItems(ctx, o.ID, items); err != nil {
			return err
		}
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// priceItem resolves the drug and optional variant of a line and snapshots
// its price. A variant price overrides the drug price.
func (s *orderService) priceItem(ctx context.Context, tx Tx, in OrderItemInput) (OrderItem, error) {
	drug, err := tx.Catalog().GetDrug(ctx, in.DrugID)
	if err != nil {
		return OrderItem{}, err
	}
	if !drug.IsActive {
		return OrderItem{}, NotFound("drug", in.DrugID)
	}

	item := OrderItem{
		DrugID:    drug.ID,
		DrugName:  drug.Name,
		VariantID: in.VariantID,
		Quantity:  in.Quantity,
		Price:     drug.Price,
	}
	if in.VariantID != nil {
		v, err := tx.Catalog().GetVariant(ctx, *in.VariantID)
		if err != nil {
			return OrderItem{}, err
		}
		if !v.IsActive {
			return OrderItem{}, NotFound("drug variant", *in.VariantID)
		}
		if v.DrugID != drug.ID {
			return OrderItem{}, Errorf(KindInvalidRequest,
				"drug variant %d does not belong to drug %d", v.ID, drug.ID)
		}
		item.VariantName = v.Name
		item.Price = v.Price
	}
	item.Price = item.Price.Round(2)
	item.Subtotal = item.Price.Mul(decimal.NewFromInt(int64(in.Quantity))).Round(2)
	return item, nil
}

func validateItems(items []OrderItemInput) error {
	if len(items) == 0 {
		return Errorf(KindInvalidRequest, "order must contain at least one item")
	}
	type line struct{ drug, variant int64 }
	seen := make(map[line]bool, len(items))
	for i, in := range items {
		if in.Quantity <= 0 {
			return Errorf(KindInvalidRequest, "item %d: quantity must be positive, got %d", i+1, in.Quantity)
		}
		if in.DrugID <= 0 {
			return Errorf(KindInvalidRequest, "item %d: drug_id is required", i+1)
		}
		key := line{drug: in.DrugID, variant: StockKey{VariantID: in.VariantID}.variantOrZero()}
		if seen[key] {
			return Errorf(KindInvalidRequest, "item %d: duplicate line for drug %d", i+1, in.DrugID)
		}
		seen[key] = true
	}
	return nil
}

// ── Scan ────────────────────────────────────────────────────────────────────

func (s *orderService) ScanOrder(ctx context.Context, p Principal, code string) (result *ScanResult, err error) {
	code = NormalizeCode(code)
	ctx, span := s.startSpan(ctx, "orders.scan", attribute.String("order.code", code))
	defer func() {
		if err != nil {
			s.metrics.scanRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", KindOf(err).String())))
		}
		endSpan(span, err)
	}()

	if !ValidCode(code) {
		return nil, Errorf(KindInvalidRequest, "malformed order code %q", code)
	}
	if err := s.policy.Require(p, ActionScan); err != nil {
		return nil, err
	}

	var order *Order
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByCode(ctx, code, true)
		if err != nil {
			return err
		}
		res, err := s.resourceOf(ctx, tx, o)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(p, ActionScan, res); err != nil {
			return err
		}

		switch o.Status {
		case OrderStatusConfirmed:
			return Errorf(KindAlreadyConfirmed, "order %s is already confirmed", o.OrderNumber)
		case OrderStatusCancelled:
			return Errorf(KindAlreadyCancelled, "order %s was cancelled", o.OrderNumber)
		}

		for _, it := range lockOrder(o.Items) {
			ok, current, err := tx.Inventory().ReserveAndDecrement(ctx, it.StockKey(o.BranchID), it.Quantity, o.ID)
			if errors.Is(err, ErrNotFound) {
				return InsufficientStock(it.DrugID, it.VariantID, 0, it.Quantity)
			}
			if err != nil {
				return err
			}
			if !ok {
				return InsufficientStock(it.DrugID, it.VariantID, current, it.Quantity)
			}
		}

		if err := tx.Orders().UpdateStatus(ctx, o, OrderStatusConfirmed, s.now()); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientStock) {
			s.logger.Warn("scan rejected: insufficient stock", zap.String("code", code), zap.Error(err))
		}
		return nil, err
	}

	span.SetAttributes(attribute.Int64("order.id", order.ID))
	s.metrics.confirmed.Add(ctx, 1)
	s.logger.Info("order confirmed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("scanned_by", p.ID),
	)
	return &ScanResult{Order: order, Message: ScanConfirmedMessage}, nil
}

// lockOrder returns items sorted by (drug, variant). Every scan locks
// inventory rows in this order so two scans never wait on each other in a cycle.
func lockOrder(items []OrderItem) []OrderItem {
	sorted := make([]OrderItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StockKey(0).Less(sorted[j].StockKey(0))
	})
	return sorted
}

// ── Cancel ──────────────────────────────────────────────────────────────────

func (s *orderService) CancelOrder(ctx context.Context, p Principal, orderID int64) (order *Order, err error) {
	ctx, span := s.startSpan(ctx, "orders.cancel", attribute.Int64("order.id", orderID))
	defer func() { endSpan(span, err) }()

	if err := s.policy.Require(p, ActionCancel); err != nil {
		return nil, err
	}

	err = s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID, true)
		if err != nil {
			return err
		}
		res, err := s.resourceOf(ctx, tx, o)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(p, ActionCancel, res); err != nil {
			return err
		}
		if o.Status != OrderStatusPending {
			return Errorf(KindInvalidState, "only PENDING orders can be cancelled, order %d is %s", o.ID, o.Status)
		}
		if err := tx.Orders().UpdateStatus(ctx, o, OrderStatusCancelled, s.now()); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.cancelled.Add(ctx, 1)
	s.logger.Info("order cancelled", zap.Int64("order_id", order.ID), zap.Int64("cancelled_by", p.ID))
	return order, nil
}

// ── Queries ─────────────────────────────────────────────────────────────────

func (s *orderService) GetOrder(ctx context.Context, p Principal, orderID int64) (*Order, error) {
	if err := s.policy.Require(p, ActionView); err != nil {
		return nil, err
	}
	var order *Order
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID, false)
		if err != nil {
			return err
		}
		res, err := s.resourceOf(ctx, tx, o)
		if err != nil {
			return err
		}
		if err := s.policy.Authorize(p, ActionView, res); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, p Principal, f OrderFilter) ([]OrderSummary, error) {
	if f.Skip < 0 {
		return nil, Errorf(KindInvalidRequest, "skip must not be negative")
	}
	if f.Limit == 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit < 0 || f.Limit > MaxListLimit {
		return nil, Errorf(KindInvalidRequest, "limit must be between 1 and %d", MaxListLimit)
	}
	if f.Status != nil && !f.Status.Valid() {
		return nil, Errorf(KindInvalidRequest, "unknown order status %q", *f.Status)
	}

	var pharmacyID *int64
	switch s.policy.Scope(p.Role, ActionList) {
	case ScopeAll:
	case ScopePharmacy:
		if p.PharmacyID == nil {
			return nil, Forbidden("principal is not attached to a pharmacy")
		}
		pharmacyID = p.PharmacyID
	case ScopeBranch:
		if p.BranchID == nil {
			return nil, Forbidden("principal is not attached to a branch")
		}
		if f.BranchID != nil && *f.BranchID != *p.BranchID {
			return nil, Forbidden("cannot list orders of another branch")
		}
		f.BranchID = p.BranchID
	case ScopeOwn:
		if f.UserID != nil && *f.UserID != p.ID {
			return nil, Forbidden("cannot list orders of another user")
		}
		id := p.ID
		f.UserID = &id
	default:
		return nil, Forbidden("role %q may not %s", p.Role, ActionList)
	}

	var out []OrderSummary
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		if pharmacyID != nil {
			out, err = tx.Orders().ListByPharmacy(ctx, *pharmacyID, f)
		} else {
			out, err = tx.Orders().ListFiltered(ctx, f)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resourceOf resolves the owning branch and pharmacy of an order.
func (s *orderService) resourceOf(ctx context.Context, tx Tx, o *Order) (Resource, error) {
	branch, err := tx.Catalog().GetBranch(ctx, o.BranchID)
	if err != nil {
		return Resource{}, err
	}
	return Resource{OwnerUserID: o.UserID, BranchID: branch.ID, PharmacyID: branch.PharmacyID}, nil
}
