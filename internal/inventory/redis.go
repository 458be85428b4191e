package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const defaultTxRetries = 16

// RedisCatalog stores items as Redis hashes so lanes in separate processes share one
// catalog. Every mutation runs in a WATCH/MULTI transaction on the item key and is
// retried when another writer touched the key first.
type RedisCatalog struct {
	R          *redis.Client
	Prefix     string
	MaxRetries int
}

// NewRedisCatalog constructs a Redis-backed catalog.
func NewRedisCatalog(client *redis.Client, prefix string) *RedisCatalog {
	return &RedisCatalog{R: client, Prefix: prefix, MaxRetries: defaultTxRetries}
}

// Lookup implements Catalog.
func (c *RedisCatalog) Lookup(ctx context.Context, name string) (Item, error) {
	if err := c.ready(); err != nil {
		return Item{}, err
	}
	return c.load(ctx, c.R, name)
}

// Stock implements Catalog.
func (c *RedisCatalog) Stock(ctx context.Context, item Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if err := c.ready(); err != nil {
		return err
	}
	return c.update(ctx, item.Name, func(tx *redis.Tx) (Item, error) {
		existing, err := c.load(ctx, tx, item.Name)
		switch {
		case err == nil:
			item.Count = existing.Count.Add(item.Count)
		case !errors.Is(err, ErrNotFound):
			return Item{}, err
		}
		return item, nil
	})
}

// Decrement implements Catalog.
func (c *RedisCatalog) Decrement(ctx context.Context, name string, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if err := c.ready(); err != nil {
		return err
	}
	return c.update(ctx, name, func(tx *redis.Tx) (Item, error) {
		it, err := c.load(ctx, tx, name)
		if err != nil {
			return Item{}, err
		}
		if it.Count.LessThan(qty) {
			return Item{}, fmt.Errorf("%s: have %s want %s: %w", name, it.Count, qty, ErrOutOfStock)
		}
		it.Count = it.Count.Sub(qty)
		return it, nil
	})
}

// Take implements Catalog.
func (c *RedisCatalog) Take(ctx context.Context, name string, qty decimal.Decimal) (decimal.Decimal, error) {
	if !qty.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if err := c.ready(); err != nil {
		return decimal.Zero, err
	}
	taken := decimal.Zero
	err := c.update(ctx, name, func(tx *redis.Tx) (Item, error) {
		it, err := c.load(ctx, tx, name)
		if err != nil {
			return Item{}, err
		}
		taken = decimal.Min(it.Count, qty)
		it.Count = it.Count.Sub(taken)
		return it, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return taken, nil
}

// Increment implements Catalog.
func (c *RedisCatalog) Increment(ctx context.Context, item Item, qty decimal.Decimal) error {
	if !qty.IsPositive() {
		return ErrInvalidQuantity
	}
	if err := c.ready(); err != nil {
		return err
	}
	return c.update(ctx, item.Name, func(tx *redis.Tx) (Item, error) {
		existing, err := c.load(ctx, tx, item.Name)
		switch {
		case err == nil:
			existing.Count = existing.Count.Add(qty)
			return existing, nil
		case errors.Is(err, ErrNotFound):
			item.Count = qty
			return item, nil
		default:
			return Item{}, err
		}
	})
}

// Remove implements Catalog.
func (c *RedisCatalog) Remove(ctx context.Context, name string) error {
	if err := c.ready(); err != nil {
		return err
	}
	removed, err := c.R.Del(ctx, c.itemKey(name)).Result()
	if err != nil {
		return err
	}
	if err := c.R.SRem(ctx, c.indexKey(), name).Err(); err != nil {
		return err
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Items implements Catalog.
func (c *RedisCatalog) Items(ctx context.Context) ([]Item, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	names, err := c.R.SMembers(ctx, c.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Item, 0, len(names))
	for _, name := range names {
		it, err := c.load(ctx, c.R, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	sortItems(out)
	return out, nil
}

// update runs mutate inside an optimistic transaction on the item key and writes the
// returned item back (deleting it when its count is zero).
func (c *RedisCatalog) update(ctx context.Context, name string, mutate func(tx *redis.Tx) (Item, error)) error {
	key := c.itemKey(name)
	retries := c.MaxRetries
	if retries <= 0 {
		retries = defaultTxRetries
	}
	for attempt := 0; attempt < retries; attempt++ {
		err := c.R.Watch(ctx, func(tx *redis.Tx) error {
			next, err := mutate(tx)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				c.write(ctx, pipe, next)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			continue
		}
		return err
	}
	return fmt.Errorf("inventory: %s: transaction retries exhausted", name)
}

func (c *RedisCatalog) write(ctx context.Context, pipe redis.Pipeliner, it Item) {
	key := c.itemKey(it.Name)
	if !it.Count.IsPositive() {
		pipe.Del(ctx, key)
		pipe.SRem(ctx, c.indexKey(), it.Name)
		return
	}
	pipe.HSet(ctx, key,
		"price", it.UnitPrice.String(),
		"tax", it.TaxRate.String(),
		"count", it.Count.String(),
	)
	pipe.SAdd(ctx, c.indexKey(), it.Name)
}

func (c *RedisCatalog) load(ctx context.Context, cmd redis.Cmdable, name string) (Item, error) {
	fields, err := cmd.HGetAll(ctx, c.itemKey(name)).Result()
	if err != nil {
		return Item{}, err
	}
	if len(fields) == 0 {
		return Item{}, ErrNotFound
	}
	it := Item{Name: name}
	if it.UnitPrice, err = decimal.NewFromString(fields["price"]); err != nil {
		return Item{}, fmt.Errorf("inventory: %s: decode price: %w", name, err)
	}
	if it.TaxRate, err = decimal.NewFromString(fields["tax"]); err != nil {
		return Item{}, fmt.Errorf("inventory: %s: decode tax: %w", name, err)
	}
	if it.Count, err = decimal.NewFromString(fields["count"]); err != nil {
		return Item{}, fmt.Errorf("inventory: %s: decode count: %w", name, err)
	}
	return it, nil
}

func (c *RedisCatalog) ready() error {
	if c == nil || c.R == nil {
		return errors.New("inventory: redis client not configured")
	}
	return nil
}

func (c *RedisCatalog) itemKey(name string) string {
	return c.prefix() + "inventory:item:" + name
}

func (c *RedisCatalog) indexKey() string {
	return c.prefix() + "inventory:items"
}

func (c *RedisCatalog) prefix() string {
	p := strings.TrimSpace(c.Prefix)
	if p == "" {
		return ""
	}
	if strings.HasSuffix(p, ":") {
		return p
	}
	return p + ":"
}
