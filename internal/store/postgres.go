package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/clearbook/settlement-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All amounts are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetBalance(ctx context.Context, asset, owner string) (decimal.Decimal, error) {
	var amountS string
	err := s.pool.QueryRow(ctx,
		`SELECT amount::TEXT FROM balances WHERE asset = $1 AND owner = $2`,
		asset, owner).Scan(&amountS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("get balance %s/%s: %w", asset, owner, err)
	}

	amount, _ := decimal.NewFromString(amountS)
	return amount, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, asset, owner string, amount decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO balances (asset, owner, amount)
		 VALUES ($1, $2, $3::NUMERIC)
		 ON CONFLICT (asset, owner) DO UPDATE SET amount = EXCLUDED.amount`,
		asset, owner, amount.String(),
	)
	return err
}

func (s *PostgresStore) ListBalances(ctx context.Context, owner string) ([]model.Balance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT asset, owner, amount::TEXT FROM balances WHERE owner = $1 ORDER BY asset`,
		owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.Balance
	for rows.Next() {
		var b model.Balance
		var amountS string
		if err := rows.Scan(&b.Asset, &b.Owner, &amountS); err != nil {
			return nil, err
		}
		b.Amount, _ = decimal.NewFromString(amountS)
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// InsertOrder assigns the next id inside the insert itself so the
// sequence stays gapless even if a prior transaction rolled back.
// Mutations are serialized by the service layer, so the MAX(id)+1
// subquery cannot race with itself.
func (s *PostgresStore) InsertOrder(ctx context.Context, o *model.Order) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO orders (id, owner, asset_wanted, amount_wanted, asset_offered, amount_offered, created_at, cancelled)
		 VALUES ((SELECT COALESCE(MAX(id), 0) + 1 FROM orders),
		         $1, $2, $3::NUMERIC, $4, $5::NUMERIC, $6, FALSE)
		 RETURNING id`,
		o.Owner, o.AssetWanted, o.AmountWanted.String(),
		o.AssetOffered, o.AmountOffered.String(), o.CreatedAt,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id int64) (*model.Order, error) {
	var o model.Order
	var amountWanted, amountOffered string

	err := s.pool.QueryRow(ctx,
		`SELECT id, owner, asset_wanted, amount_wanted::TEXT,
		        asset_offered, amount_offered::TEXT, created_at, cancelled
		 FROM orders WHERE id = $1`, id).
		Scan(&o.ID, &o.Owner, &o.AssetWanted, &amountWanted,
			&o.AssetOffered, &amountOffered, &o.CreatedAt, &o.Cancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}

	o.AmountWanted, _ = decimal.NewFromString(amountWanted)
	o.AmountOffered, _ = decimal.NewFromString(amountOffered)
	return &o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, owner string) ([]model.Order, error) {
	query := `SELECT id, owner, asset_wanted, amount_wanted::TEXT,
	                 asset_offered, amount_offered::TEXT, created_at, cancelled
	          FROM orders`
	args := []any{}
	if owner != "" {
		query += ` WHERE owner = $1`
		args = append(args, owner)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var amountWanted, amountOffered string
		if err := rows.Scan(&o.ID, &o.Owner, &o.AssetWanted, &amountWanted,
			&o.AssetOffered, &amountOffered, &o.CreatedAt, &o.Cancelled); err != nil {
			return nil, err
		}
		o.AmountWanted, _ = decimal.NewFromString(amountWanted)
		o.AmountOffered, _ = decimal.NewFromString(amountOffered)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) OrderCount(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&count)
	return count, err
}

func (s *PostgresStore) MarkOrderCancelled(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET cancelled = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %d", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *model.Event) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (event_id, kind, at, asset, user_id, amount, balance,
		                     order_id, asset_wanted, amount_wanted, asset_offered, amount_offered, order_created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC,
		         $8, $9, $10::NUMERIC, $11, $12::NUMERIC, $13)
		 RETURNING seq`,
		e.ID, e.Kind, e.At, e.Asset, e.User, e.Amount.String(), e.Balance.String(),
		e.OrderID, e.AssetWanted, e.AmountWanted.String(),
		e.AssetOffered, e.AmountOffered.String(), e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEvents(ctx context.Context, user string) ([]model.Event, error) {
	query := `SELECT seq, event_id, kind, at, asset, user_id, amount::TEXT, balance::TEXT,
	                 order_id, asset_wanted, amount_wanted::TEXT, asset_offered, amount_offered::TEXT, order_created_at
	          FROM events`
	args := []any{}
	if user != "" {
		query += ` WHERE user_id = $1`
		args = append(args, user)
	}
	query += ` ORDER BY seq`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		var amountS, balanceS, amountWantedS, amountOfferedS string
		if err := rows.Scan(&e.Seq, &e.ID, &e.Kind, &e.At, &e.Asset, &e.User, &amountS, &balanceS,
			&e.OrderID, &e.AssetWanted, &amountWantedS, &e.AssetOffered, &amountOfferedS, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount, _ = decimal.NewFromString(amountS)
		e.Balance, _ = decimal.NewFromString(balanceS)
		e.AmountWanted, _ = decimal.NewFromString(amountWantedS)
		e.AmountOffered, _ = decimal.NewFromString(amountOfferedS)
		events = append(events, e)
	}
	return events, rows.Err()
}
