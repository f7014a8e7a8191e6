// Package catalog serves the product list and categories, keeps the admin's edits to them,
// and stores the carts the storefront syncs.
package catalog

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/liff-store/internal/common"
	"github.com/noah-isme/liff-store/internal/db"
)

type queryProvider interface {
	ListProducts(ctx context.Context) ([]db.Product, error)
	GetProductsByNames(ctx context.Context, names []string) (map[string]db.Product, error)
	UpsertProduct(ctx context.Context, p db.Product) (db.Product, error)
	DeleteProduct(ctx context.Context, name string) error
	ListCategories(ctx context.Context) ([]db.Category, error)
	SaveCart(ctx context.Context, userID string, items map[string]int) error
}

// TxRunner runs a unit of work in one repository transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q db.Querier) error) error
}

// Service orchestrates catalog queries, admin edits, and caching.
type Service struct {
	queries queryProvider
	tx      TxRunner
	cache   *Cache
	log     zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Queries queryProvider
	Tx      TxRunner
	Cache   *Cache
	Logger  zerolog.Logger
}

// NewService constructs a Service instance.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	if cfg.Tx == nil {
		return nil, errors.New("catalog: transaction runner is required")
	}
	return &Service{queries: cfg.Queries, tx: cfg.Tx, cache: cfg.Cache, log: cfg.Logger}, nil
}

// ListParams captures filters for product listing.
type ListParams struct {
	Query           string
	Category        string
	IncludeDisabled bool
}

// ParseListParams normalises raw query values.
func ParseListParams(values url.Values) ListParams {
	return ListParams{
		Query:    strings.TrimSpace(values.Get("q")),
		Category: strings.TrimSpace(values.Get("category")),
	}
}

// ListProducts returns products ordered by sort key then name. Disabled products are hidden
// unless params asks for them.
func (s *Service) ListProducts(ctx context.Context, params ListParams) ([]db.Product, error) {
	all, err := s.allProducts(ctx)
	if err != nil {
		return nil, err
	}
	query := strings.ToLower(params.Query)
	out := make([]db.Product, 0, len(all))
	for _, p := range all {
		if !p.Enabled && !params.IncludeDisabled {
			continue
		}
		if params.Category != "" && p.Category != params.Category {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(p.Name), query) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) allProducts(ctx context.Context) ([]db.Product, error) {
	var cached []db.Product
	if ok, err := s.cache.GetJSON(ctx, productsCacheKey, &cached); err == nil && ok {
		return cached, nil
	} else if err != nil {
		s.log.Warn().Err(err).Msg("catalog cache read failed")
	}
	products, err := s.queries.ListProducts(ctx)
	if err != nil {
		return nil, common.PersistenceError("list products", err)
	}
	if products == nil {
		products = []db.Product{}
	}
	if err := s.cache.SetJSON(ctx, productsCacheKey, products); err != nil {
		s.log.Warn().Err(err).Msg("catalog cache write failed")
	}
	return products, nil
}

// ProductInput is the admin wire shape of a product. Nil fields keep their current value on
// upsert; enabled defaults to true for new products.
type ProductInput struct {
	Name     string  `json:"name"`
	Price    *int64  `json:"price" validate:"omitempty,min=0"`
	Stock    *int64  `json:"stock" validate:"omitempty,min=0"`
	Enabled  *bool   `json:"enabled"`
	Sort     *int    `json:"sort"`
	Category *string `json:"category"`
	Image    *string `json:"image"`
}

func (in ProductInput) merge(p db.Product) db.Product {
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Enabled != nil {
		p.Enabled = *in.Enabled
	}
	if in.Sort != nil {
		p.Sort = *in.Sort
	}
	if in.Category != nil {
		p.Category = strings.TrimSpace(*in.Category)
	}
	if in.Image != nil {
		p.Image = strings.TrimSpace(*in.Image)
	}
	return p
}

// ReplaceProducts swaps the whole catalog. Every product needs a name and a price.
func (s *Service) ReplaceProducts(ctx context.Context, inputs []ProductInput) ([]db.Product, error) {
	products := make([]db.Product, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for i, in := range inputs {
		in.Name = strings.TrimSpace(in.Name)
		if in.Name == "" {
			return nil, common.ValidationError("product %d has no name", i+1)
		}
		if in.Price == nil {
			return nil, common.ValidationError("product %s has no price", in.Name)
		}
		if err := common.Validate(in); err != nil {
			return nil, err
		}
		if _, dup := seen[in.Name]; dup {
			return nil, common.ValidationError("duplicate product %s", in.Name)
		}
		seen[in.Name] = struct{}{}
		products = append(products, in.merge(db.Product{Name: in.Name, Enabled: true, Sort: i}))
	}
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		return q.ReplaceProducts(ctx, products)
	})
	if err != nil {
		return nil, common.PersistenceError("replace products", err)
	}
	s.invalidate(ctx, productsCacheKey)
	return products, nil
}

// UpsertProduct merges in over the stored product called name, creating it when missing.
func (s *Service) UpsertProduct(ctx context.Context, name string, in ProductInput) (db.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return db.Product{}, common.ValidationError("product name is required")
	}
	if err := common.Validate(in); err != nil {
		return db.Product{}, err
	}
	var saved db.Product
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		existing, err := q.GetProductsByNames(ctx, []string{name})
		if err != nil {
			return common.PersistenceError("load product", err)
		}
		p, ok := existing[name]
		if !ok {
			if in.Price == nil {
				return common.ValidationError("product %s has no price", name)
			}
			p = db.Product{Name: name, Enabled: true}
		}
		saved, err = q.UpsertProduct(ctx, in.merge(p))
		if err != nil {
			return common.PersistenceError("save product", err)
		}
		return nil
	})
	if err != nil {
		return db.Product{}, err
	}
	s.invalidate(ctx, productsCacheKey)
	return saved, nil
}

// DeleteProduct removes a product from the catalog.
func (s *Service) DeleteProduct(ctx context.Context, name string) error {
	err := s.queries.DeleteProduct(ctx, strings.TrimSpace(name))
	if errors.Is(err, db.ErrNotFound) {
		return common.NotFoundError("product %s not found", name)
	}
	if err != nil {
		return common.PersistenceError("delete product", err)
	}
	s.invalidate(ctx, productsCacheKey)
	return nil
}

// ListCategories returns categories ordered by sort key.
func (s *Service) ListCategories(ctx context.Context) ([]db.Category, error) {
	var cached []db.Category
	if ok, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached); err == nil && ok {
		return cached, nil
	}
	categories, err := s.queries.ListCategories(ctx)
	if err != nil {
		return nil, common.PersistenceError("list categories", err)
	}
	if categories == nil {
		categories = []db.Category{}
	}
	_ = s.cache.SetJSON(ctx, categoriesCacheKey, categories)
	return categories, nil
}

// ReplaceCategories swaps the category list. Categories without an id get one.
func (s *Service) ReplaceCategories(ctx context.Context, categories []db.Category) ([]db.Category, error) {
	seen := make(map[string]struct{}, len(categories))
	for i := range categories {
		c := &categories[i]
		c.Name = strings.TrimSpace(c.Name)
		if c.Name == "" {
			return nil, common.ValidationError("category %d has no name", i+1)
		}
		if c.ID = strings.TrimSpace(c.ID); c.ID == "" {
			c.ID = uuid.NewString()
		}
		if _, dup := seen[c.ID]; dup {
			return nil, common.ValidationError("duplicate category id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	sort.SliceStable(categories, func(i, j int) bool { return categories[i].Sort < categories[j].Sort })
	err := s.tx.InTx(ctx, func(q db.Querier) error {
		return q.ReplaceCategories(ctx, categories)
	})
	if err != nil {
		return nil, common.PersistenceError("replace categories", err)
	}
	s.invalidate(ctx, categoriesCacheKey)
	return categories, nil
}

// CartInput is the body of POST /carts.
type CartInput struct {
	UserID string         `json:"userId" validate:"required,max=128"`
	Cart   map[string]int `json:"cart" validate:"dive,keys,required,endkeys,min=0"`
}

// SyncCart stores the storefront cart of a member. Zero quantities are dropped.
func (s *Service) SyncCart(ctx context.Context, in CartInput) (map[string]int, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	if err := common.Validate(in); err != nil {
		return nil, err
	}
	items := make(map[string]int, len(in.Cart))
	for name, qty := range in.Cart {
		if name = strings.TrimSpace(name); name != "" && qty > 0 {
			items[name] = qty
		}
	}
	if err := s.queries.SaveCart(ctx, in.UserID, items); err != nil {
		return nil, common.PersistenceError("save cart", err)
	}
	return items, nil
}

func (s *Service) invalidate(ctx context.Context, keys ...string) {
	if err := s.cache.Invalidate(ctx, keys...); err != nil {
		s.log.Warn().Err(err).Strs("keys", keys).Msg("catalog cache invalidation failed")
	}
}
