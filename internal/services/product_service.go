package services

import (
	"context"
	"time"

	"subscription-sync/internal/models"
	"subscription-sync/pkg/logging"
)

const (
	defaultWeeklyPrice  = "4.99"
	defaultMonthlyPrice = "9.99"
)

// ProductCatalog looks up storefront information for product ids.
// Unknown ids are simply missing from the result.
type ProductCatalog interface {
	Products(ctx context.Context, productIDs []string) ([]models.Product, error)
}

// PriceCache stores the last retrieved subscription prices.
type PriceCache interface {
	CachePrices(ctx context.Context, prices models.SubscriptionPrices, expire time.Duration) error
	CachedPrices(ctx context.Context) (models.SubscriptionPrices, bool, error)
}

// StaticCatalog is a ProductCatalog backed by configured prices.
type StaticCatalog map[string]string

// Products implements ProductCatalog.
func (c StaticCatalog) Products(_ context.Context, productIDs []string) ([]models.Product, error) {
	products := make([]models.Product, 0, len(productIDs))
	for _, id := range productIDs {
		if price, ok := c[id]; ok && price != "" {
			products = append(products, models.Product{ProductID: id, LocalizedPrice: price})
		}
	}
	return products, nil
}

// ProductService knows the two offered subscription products.
type ProductService struct {
	weeklyID  string
	monthlyID string
	catalog   ProductCatalog
	cache     PriceCache
	cacheTTL  time.Duration
}

// NewProductService creates a product service. cache may be nil.
func NewProductService(weeklyID, monthlyID string, catalog ProductCatalog, cache PriceCache, cacheTTL time.Duration) *ProductService {
	return &ProductService{
		weeklyID:  weeklyID,
		monthlyID: monthlyID,
		catalog:   catalog,
		cache:     cache,
		cacheTTL:  cacheTTL,
	}
}

// ProductIDs returns the weekly and monthly product ids.
func (s *ProductService) ProductIDs() []string {
	return []string{s.weeklyID, s.monthlyID}
}

// RetrieveSubscriptions returns the weekly and monthly prices.
// Prices the catalog cannot provide fall back to 4.99 and 9.99.
func (s *ProductService) RetrieveSubscriptions(ctx context.Context) models.SubscriptionPrices {
	if s.cache != nil {
		cached, ok, err := s.cache.CachedPrices(ctx)
		if err != nil {
			logging.Warnf("Failed to read cached prices: %v", err)
		} else if ok {
			return cached
		}
	}

	prices := models.SubscriptionPrices{Weekly: defaultWeeklyPrice, Monthly: defaultMonthlyPrice}

	products, err := s.catalog.Products(ctx, s.ProductIDs())
	if err != nil {
		logging.Errorf("Failed to retrieve products: %v", err)
		return prices
	}

	for _, p := range products {
		switch p.ProductID {
		case s.weeklyID:
			prices.Weekly = p.LocalizedPrice
		case s.monthlyID:
			prices.Monthly = p.LocalizedPrice
		}
	}

	if s.cache != nil && s.cacheTTL > 0 {
		if err := s.cache.CachePrices(ctx, prices, s.cacheTTL); err != nil {
			logging.Warnf("Failed to cache prices: %v", err)
		}
	}

	return prices
}

// PackageDetail returns the display title of a product, or "" for unknown ids.
func (s *ProductService) PackageDetail(productID string) string {
	if productID == "" {
		return ""
	}
	switch productID {
	case s.weeklyID:
		return "WEEKLY SUBSCRIPTION"
	case s.monthlyID:
		return "MONTHLY SUBSCRIPTION"
	default:
		return ""
	}
}

// PlanName implements PlanNamer.
func (s *ProductService) PlanName(productID string) string {
	if productID == "" {
		return ""
	}
	switch productID {
	case s.weeklyID:
		return "Weekly"
	case s.monthlyID:
		return "Monthly"
	default:
		return ""
	}
}
