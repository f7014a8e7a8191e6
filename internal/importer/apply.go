package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/liff-store/internal/db"
	"github.com/noah-isme/liff-store/internal/vip"
)

// Stats counts what Apply wrote.
type Stats struct {
	Products       int `json:"products"`
	Categories     int `json:"categories"`
	Coupons        int `json:"coupons"`
	MembersCreated int `json:"membersCreated"`
	MembersUpdated int `json:"membersUpdated"`
	OrdersInserted int `json:"ordersInserted"`
	OrdersSkipped  int `json:"ordersSkipped"`
	Carts          int `json:"carts"`
}

// Apply writes the snapshot in one transaction. Catalog and coupons are replaced wholesale,
// members are upserted, and orders already present under the same id are left untouched so a
// rerun is safe.
func Apply(ctx context.Context, store db.Store, snap Snapshot) (Stats, error) {
	var st Stats
	err := store.InTx(ctx, func(q db.Querier) error {
		st = Stats{}
		if snap.Products != nil {
			if err := q.ReplaceProducts(ctx, snap.Products); err != nil {
				return fmt.Errorf("replace products: %w", err)
			}
			st.Products = len(snap.Products)
		}
		if snap.Categories != nil {
			if err := q.ReplaceCategories(ctx, snap.Categories); err != nil {
				return fmt.Errorf("replace categories: %w", err)
			}
			st.Categories = len(snap.Categories)
		}
		if snap.Coupons != nil {
			if err := q.ReplaceCoupons(ctx, snap.Coupons); err != nil {
				return fmt.Errorf("replace coupons: %w", err)
			}
			st.Coupons = len(snap.Coupons)
		}

		for _, m := range snap.Members {
			// The tier is always derived from spend; stored levels from the legacy app may lag.
			m.VIPLevel = int(vip.LevelFor(m.TotalSpent))
			existing, err := q.GetMember(ctx, m.UserID)
			switch {
			case errors.Is(err, db.ErrNotFound):
				if _, err := q.InsertMember(ctx, m); err != nil {
					return fmt.Errorf("insert member %s: %w", m.UserID, err)
				}
				st.MembersCreated++
			case err != nil:
				return fmt.Errorf("get member %s: %w", m.UserID, err)
			default:
				if m.CreatedAt.IsZero() {
					m.CreatedAt = existing.CreatedAt
				}
				if m.LastOrderAt == nil {
					m.LastOrderAt = existing.LastOrderAt
				}
				if _, err := q.UpdateMember(ctx, m); err != nil {
					return fmt.Errorf("update member %s: %w", m.UserID, err)
				}
				st.MembersUpdated++
			}
		}

		orders := append([]db.Order(nil), snap.Orders...)
		sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
		for _, o := range orders {
			if _, err := q.GetOrder(ctx, o.ID); err == nil {
				st.OrdersSkipped++
				continue
			} else if !errors.Is(err, db.ErrNotFound) {
				return fmt.Errorf("get order %d: %w", o.ID, err)
			}
			if _, err := q.InsertOrder(ctx, o); err != nil {
				return fmt.Errorf("insert order %d: %w", o.ID, err)
			}
			st.OrdersInserted++
		}

		if snap.Store != nil {
			if err := q.SaveStoreConfig(ctx, *snap.Store); err != nil {
				return fmt.Errorf("save store config: %w", err)
			}
		}
		if snap.Settings != nil {
			if err := q.SaveAdminSettings(ctx, *snap.Settings); err != nil {
				return fmt.Errorf("save settings: %w", err)
			}
		}

		users := make([]string, 0, len(snap.Carts))
		for u := range snap.Carts {
			users = append(users, u)
		}
		sort.Strings(users)
		for _, u := range users {
			if u == "" {
				continue
			}
			if err := q.SaveCart(ctx, u, snap.Carts[u]); err != nil {
				return fmt.Errorf("save cart %s: %w", u, err)
			}
			st.Carts++
		}
		return nil
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}
