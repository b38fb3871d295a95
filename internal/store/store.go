package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmacare/m/domain"
)

// settingsKey is the fixed primary key of the singleton settings record.
const settingsKey = "pharmacy"

// Store is the persistence adapter for the named record collections. Each
// record is stored as a JSON document under its caller-generated key, so
// the at-rest schema is exactly the entity model's wire shape.
type Store struct {
	db *sqlx.DB
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func getAll[T any](ctx context.Context, db *sqlx.DB, table string) ([]T, error) {
	var raws []string
	if err := db.SelectContext(ctx, &raws, fmt.Sprintf(`SELECT data FROM %s ORDER BY id`, table)); err != nil {
		return nil, fmt.Errorf("fetch %s: %w", table, err)
	}
	out := make([]T, 0, len(raws))
	for _, raw := range raws {
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode %s record: %w", table, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func insert(ctx context.Context, db sqlx.ExtContext, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}
	_, err = db.ExecContext(ctx, fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?)`, table), id, string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", table, id, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

func upsert(ctx context.Context, db sqlx.ExtContext, table, id string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", table, err)
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, data) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET data = excluded.data`, table),
		id, string(data))
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Medicines

func (s *Store) GetMedicines(ctx context.Context) ([]domain.Medicine, error) {
	return getAll[domain.Medicine](ctx, s.db, "medicines")
}

func (s *Store) AddMedicine(ctx context.Context, med domain.Medicine) error {
	return insert(ctx, s.db, "medicines", med.ID, med)
}

func (s *Store) UpdateMedicine(ctx context.Context, med domain.Medicine) error {
	return upsert(ctx, s.db, "medicines", med.ID, med)
}

// UpdateMedicines upserts the group in one transaction: either every write
// lands or none do.
func (s *Store) UpdateMedicines(ctx context.Context, meds []domain.Medicine) error {
	if len(meds) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin medicines update: %w", err)
	}
	for _, med := range meds {
		if err := upsert(ctx, tx, "medicines", med.ID, med); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Sales

func (s *Store) GetSales(ctx context.Context) ([]domain.Sale, error) {
	return getAll[domain.Sale](ctx, s.db, "sales")
}

func (s *Store) AddSale(ctx context.Context, sale domain.Sale) error {
	return insert(ctx, s.db, "sales", sale.ID, sale)
}

// Suppliers

func (s *Store) GetSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return getAll[domain.Supplier](ctx, s.db, "suppliers")
}

func (s *Store) AddSupplier(ctx context.Context, sup domain.Supplier) error {
	return insert(ctx, s.db, "suppliers", sup.ID, sup)
}

// Purchase orders

func (s *Store) GetPurchaseOrders(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return getAll[domain.PurchaseOrder](ctx, s.db, "purchase_orders")
}

func (s *Store) AddPurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	return insert(ctx, s.db, "purchase_orders", po.ID, po)
}

func (s *Store) UpdatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	return upsert(ctx, s.db, "purchase_orders", po.ID, po)
}

// Settings

// GetSettings returns the singleton settings record, or ErrNotFound before
// first run.
func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT data FROM settings WHERE id = ?`, settingsKey)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Settings{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("fetch settings: %w", err)
	}
	var cfg domain.Settings
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return domain.Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return cfg, nil
}

func (s *Store) UpdateSettings(ctx context.Context, cfg domain.Settings) error {
	return upsert(ctx, s.db, "settings", settingsKey, cfg)
}

// Users

func (s *Store) AddUser(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user record: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO users (id, username, data) VALUES (?, ?, ?)`,
		user.ID, user.Username, string(data))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", user.Username, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// FindByUsername looks a user up through the unique username index.
func (s *Store) FindByUsername(ctx context.Context, username string) (domain.User, error) {
	var raw string
	err := s.db.GetContext(ctx, &raw, `SELECT data FROM users WHERE username = ?`, username)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user by username: %w", err)
	}
	var user domain.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return domain.User{}, fmt.Errorf("decode user record: %w", err)
	}
	return user, nil
}
