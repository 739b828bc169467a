package routes

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/freshline/internal/catalog"
	"github.com/odyssey-erp/freshline/internal/orders"
	"github.com/odyssey-erp/freshline/internal/shared"
)

// ErrPDFUnavailable is returned when no PDF renderer is configured.
var ErrPDFUnavailable = errors.New("routes: pdf rendering not configured")

// OrderSource lists sale orders due on a date.
type OrderSource interface {
	SaleOrdersForDate(ctx context.Context, date time.Time) ([]orders.WithLines, error)
}

// CatalogPort reads customers and items and stores stop sequences.
type CatalogPort interface {
	CustomersByID(ctx context.Context, ids []int64) (map[int64]catalog.Party, error)
	ListStockItems(ctx context.Context) ([]catalog.StockItem, error)
	SetRoutePosition(ctx context.Context, customerID int64, position int) error
}

// PDFRenderer converts HTML documents to PDF.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// Config tunes route composition.
type Config struct {
	Locale       language.Tag
	DefaultLabel string
}

// Service composes routes on demand.
type Service struct {
	orders  OrderSource
	catalog CatalogPort
	pdf     PDFRenderer
	cfg     Config
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService constructs the route composer. pdf may be nil.
func NewService(orders OrderSource, catalog CatalogPort, pdf PDFRenderer, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Locale == language.Und {
		cfg.Locale = language.Czech
	}
	return &Service{orders: orders, catalog: catalog, pdf: pdf, cfg: cfg, logger: logger}
}

// ForDate recomputes every route for a delivery date. Concurrent requests
// for the same date share one computation.
func (s *Service) ForDate(ctx context.Context, date time.Time) ([]Route, error) {
	y, m, d := date.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	key := day.Format("2006-01-02")
	ch := s.group.DoChan(key, func() (interface{}, error) {
		return s.compose(context.WithoutCancel(ctx), day)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Route), nil
	}
}

func (s *Service) compose(ctx context.Context, day time.Time) ([]Route, error) {
	sales, err := s.orders.SaleOrdersForDate(ctx, day)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]struct{})
	var ids []int64
	for _, o := range sales {
		if id := o.Order.Counterparty.ID; id != nil {
			if _, ok := seen[*id]; !ok {
				seen[*id] = struct{}{}
				ids = append(ids, *id)
			}
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	customers, err := s.catalog.CustomersByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	stock, err := s.catalog.ListStockItems(ctx)
	if err != nil {
		return nil, err
	}
	items := make(map[int64]catalog.StockItem, len(stock))
	for _, it := range stock {
		items[it.ID] = it
	}
	routes := Compose(ComposeInput{
		Date:         day,
		Orders:       sales,
		Customers:    customers,
		Items:        items,
		Locale:       s.cfg.Locale,
		DefaultLabel: s.cfg.DefaultLabel,
	})
	s.logger.Debug("routes composed", slog.String("date", day.Format("2006-01-02")), slog.Int("orders", len(sales)), slog.Int("routes", len(routes)))
	return routes, nil
}

// Select narrows routes to one name when name is non-empty.
func Select(routes []Route, name string) ([]Route, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return routes, nil
	}
	for _, r := range routes {
		if strings.EqualFold(r.Name, name) {
			return []Route{r}, nil
		}
	}
	return nil, shared.ErrNotFound
}

// SetStopSequence stores a customer's position. Other customers are untouched.
func (s *Service) SetStopSequence(ctx context.Context, customerID int64, position int) error {
	if position < 1 {
		return shared.Validationf("position must be at least 1")
	}
	return s.catalog.SetRoutePosition(ctx, customerID, position)
}

// RenderPDF converts an HTML document through the configured renderer.
func (s *Service) RenderPDF(ctx context.Context, html string) ([]byte, error) {
	if s.pdf == nil {
		return nil, ErrPDFUnavailable
	}
	return s.pdf.RenderHTML(ctx, html)
}
