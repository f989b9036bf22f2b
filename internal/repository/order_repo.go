package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stackvps/reseller-platform/provision-service/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict means another provisioning attempt already holds the order
	ErrConflict = errors.New("provisioning already in progress")
)

const orderColumns = `id, user_id, customer_email, hostname, os, memory,
	   status, provisioning_status, auto_provisioned, provider, provider_service_id,
	   ip_address, username, password, provisioning_error, expiry_date,
	   last_action, last_action_time, provisioning_started_at, created_at, updated_at`

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID retrieves an order by ID
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM provisioning.orders
		WHERE id = $1
	`

	return r.scanOrder(r.pool.QueryRow(ctx, query, id))
}

// ListAll retrieves every order, newest first. The admin portal filters and
// paginates client-side, so no pagination happens here.
func (r *OrderRepository) ListAll(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM provisioning.orders
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

// ListByUser retrieves orders for one user, newest first
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM provisioning.orders
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

// LoadEligible retrieves every order currently eligible for automatic
// provisioning: paid/confirmed orders never auto-provisioned, plus SmartVPS
// orders whose previous attempt failed or never recorded an IP.
func (r *OrderRepository) LoadEligible(ctx context.Context) ([]*models.Order, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM provisioning.orders
		WHERE (status IN ('paid', 'confirmed') AND auto_provisioned = false)
		   OR (provider = 'smartvps' AND (provisioning_status = 'failed'
		        OR (status = 'confirmed' AND (ip_address IS NULL OR ip_address = ''))))
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query eligible orders: %w", err)
	}
	defer rows.Close()

	return r.scanOrders(rows)
}

// BeginProvisioning atomically acquires the provisioning lease for an order.
// The WHERE clause guarantees at most one in-flight attempt per order: a
// second caller sees zero rows and gets ErrConflict. Acquiring the lease also
// sets auto_provisioned (it never reverts) and clears the previous error.
func (r *OrderRepository) BeginProvisioning(ctx context.Context, id string) (*models.Order, error) {
	query := `
		UPDATE provisioning.orders
		SET provisioning_status = 'provisioning',
		    auto_provisioned = true,
		    provisioning_error = NULL,
		    provisioning_started_at = now(),
		    last_action = 'auto_provision_started',
		    last_action_time = now(),
		    updated_at = now()
		WHERE id = $1
		  AND (provisioning_status IS NULL OR provisioning_status != 'provisioning')
		RETURNING ` + orderColumns + `
	`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, id))
	if err == nil {
		return order, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	// No row updated: either the order does not exist or another attempt
	// holds the lease.
	if _, getErr := r.GetByID(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, ErrConflict
}

// CompleteProvisioning records a successful attempt: credentials, the
// upstream service id (written once, never overwritten) and the expiry date,
// and promotes the order to active.
func (r *OrderRepository) CompleteProvisioning(ctx context.Context, id, ipAddress, username, password, serviceID string, expiryDate time.Time) error {
	query := `
		UPDATE provisioning.orders
		SET provisioning_status = 'active',
		    status = 'active',
		    ip_address = $2,
		    username = $3,
		    password = $4,
		    provider_service_id = COALESCE(provider_service_id, $5),
		    provisioning_error = NULL,
		    expiry_date = $6,
		    provisioning_started_at = NULL,
		    last_action = 'auto_provision_completed',
		    last_action_time = now(),
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, ipAddress, username, password, serviceID, expiryDate)
	if err != nil {
		return fmt.Errorf("complete provisioning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailProvisioning records a failed attempt. auto_provisioned stays true so
// the order shows as auto-failed rather than never-provisioned.
func (r *OrderRepository) FailProvisioning(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE provisioning.orders
		SET provisioning_status = 'failed',
		    provisioning_error = $2,
		    provisioning_started_at = NULL,
		    last_action = 'auto_provision_failed',
		    last_action_time = now(),
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("fail provisioning: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AdminUpdate overwrites order fields directly. This is the manual escape
// hatch for admin edits: it deliberately skips the provisioning lease and
// writes only the fields present in the request.
func (r *OrderRepository) AdminUpdate(ctx context.Context, req *models.UpdateOrderRequest) error {
	query := `
		UPDATE provisioning.orders
		SET ip_address = COALESCE($2, ip_address),
		    username = COALESCE($3, username),
		    password = COALESCE($4, password),
		    os = COALESCE($5, os),
		    status = COALESCE($6, status),
		    provider = COALESCE($7, provider),
		    provisioning_status = COALESCE($8, provisioning_status),
		    last_action = 'manual_update',
		    last_action_time = now(),
		    updated_at = now()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		req.OrderID, req.IPAddress, req.Username, req.Password,
		req.OS, req.Status, req.Provider, req.ProvisioningStatus,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseStaleProvisioning flips provisioning leases acquired before the
// cutoff to failed. Covers attempts abandoned by a crash or a timed-out
// request; released orders become retriable again.
func (r *OrderRepository) ReleaseStaleProvisioning(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE provisioning.orders
		SET provisioning_status = 'failed',
		    provisioning_error = 'provisioning attempt timed out and was released by the watchdog',
		    provisioning_started_at = NULL,
		    last_action = 'stale_provisioning_released',
		    last_action_time = now(),
		    updated_at = now()
		WHERE provisioning_status = 'provisioning'
		  AND provisioning_started_at IS NOT NULL
		  AND provisioning_started_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale provisioning: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *OrderRepository) scanOrder(row pgx.Row) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID, &o.UserID, &o.CustomerEmail, &o.Hostname, &o.OS, &o.Memory,
		&o.Status, &o.ProvisioningStatus, &o.AutoProvisioned, &o.Provider, &o.ProviderServiceID,
		&o.IPAddress, &o.Username, &o.Password, &o.ProvisioningError, &o.ExpiryDate,
		&o.LastAction, &o.LastActionTime, &o.ProvisioningStartedAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	repairProvider(o)
	return o, nil
}

func (r *OrderRepository) scanOrders(rows pgx.Rows) ([]*models.Order, error) {
	var orders []*models.Order
	for rows.Next() {
		o := &models.Order{}
		err := rows.Scan(
			&o.ID, &o.UserID, &o.CustomerEmail, &o.Hostname, &o.OS, &o.Memory,
			&o.Status, &o.ProvisioningStatus, &o.AutoProvisioned, &o.Provider, &o.ProviderServiceID,
			&o.IPAddress, &o.Username, &o.Password, &o.ProvisioningError, &o.ExpiryDate,
			&o.LastAction, &o.LastActionTime, &o.ProvisioningStartedAt, &o.CreatedAt, &o.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		repairProvider(o)
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// repairProvider normalizes legacy rows without a provider at the store
// boundary, so consumers never branch on an empty provider.
func repairProvider(o *models.Order) {
	if o.Provider == "" {
		o.Provider = models.ProviderHostycare
	}
}
