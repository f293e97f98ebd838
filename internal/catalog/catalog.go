package catalog

import (
	"time"

	"promopush/pkg/models"
)

// Catalog is an immutable restaurant_id -> subscribers index. It is shared read-only
// by concurrent join workers.
type Catalog struct {
	byRestaurant map[string][]models.SubscriberRow
	size         int
	loadedAt     time.Time
}

func Build(rows []models.SubscriberRow, loadedAt time.Time) *Catalog {
	by := make(map[string][]models.SubscriberRow)
	for _, row := range rows {
		by[row.RestaurantID] = append(by[row.RestaurantID], row)
	}
	return &Catalog{byRestaurant: by, size: len(rows), loadedAt: loadedAt}
}

// Lookup returns the subscribers of a restaurant in load order. Callers must not modify
// the returned slice. An unknown restaurant yields an empty result.
func (c *Catalog) Lookup(restaurantID string) []models.SubscriberRow {
	rows := c.byRestaurant[restaurantID]
	return rows[:len(rows):len(rows)]
}

func (c *Catalog) Size() int {
	return c.size
}

func (c *Catalog) Restaurants() int {
	return len(c.byRestaurant)
}

func (c *Catalog) LoadedAt() time.Time {
	return c.loadedAt
}
