package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"promopush/pkg/models"
	"promopush/pkg/pgutil"
)

type Repository interface {
	LoadSubscribers(ctx context.Context) ([]models.SubscriberRow, error)
}

type PostgresRepository struct {
	db    *sql.DB
	table string
}

func NewRepository(db *sql.DB, table string) Repository {
	return &PostgresRepository{db: db, table: table}
}

// LoadSubscribers bulk-reads the registry on a dedicated connection that is always
// returned to the pool, whether the load succeeds or not.
func (r *PostgresRepository) LoadSubscribers(ctx context.Context) ([]models.SubscriberRow, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		SELECT id, client_id, restaurant_id
		FROM %s
		WHERE restaurant_id IS NOT NULL
		ORDER BY restaurant_id, id
	`, pgutil.QuoteQualified(r.table))

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subscribers []models.SubscriberRow
	for rows.Next() {
		var (
			row      models.SubscriberRow
			clientID sql.NullString
		)
		if err := rows.Scan(&row.ID, &clientID, &row.RestaurantID); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		row.ClientID = clientID.String
		subscribers = append(subscribers, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return subscribers, nil
}
