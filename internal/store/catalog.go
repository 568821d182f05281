package store

import (
	"context"
	"fmt"

	"booking-service/internal/models"
)

var catalogTables = map[models.EntityType]string{
	models.EntityTypeTrip:       "trips",
	models.EntityTypeHotel:      "hotels",
	models.EntityTypeCar:        "cars",
	models.EntityTypeAttraction: "attractions",
}

func catalogTable(t models.EntityType) (string, error) {
	table, ok := catalogTables[t]
	if !ok {
		return "", fmt.Errorf("unknown catalog type: %s", t)
	}
	return table, nil
}

// SaveCatalogEntity inserts the entity when its id is zero, otherwise updates the live row.
func (s *Store) SaveCatalogEntity(ctx context.Context, entity models.CatalogEntity) error {
	var (
		insert, update string
		args           []interface{}
		id             *int64
	)

	switch e := entity.(type) {
	case *models.Trip:
		insert = `INSERT INTO trips (title, description, city, start_date, price) VALUES ($1, $2, $3, $4, $5) RETURNING id`
		update = `UPDATE trips SET title = $1, description = $2, city = $3, start_date = $4, price = $5 WHERE id = $6 AND NOT is_deleted`
		args = []interface{}{e.Title, e.Description, e.City, e.StartDate, e.Price}
		id = &e.ID
	case *models.Hotel:
		insert = `INSERT INTO hotels (name, description, city, base_price) VALUES ($1, $2, $3, $4) RETURNING id`
		update = `UPDATE hotels SET name = $1, description = $2, city = $3, base_price = $4 WHERE id = $5 AND NOT is_deleted`
		args = []interface{}{e.Name, e.Description, e.City, e.BasePrice}
		id = &e.ID
	case *models.Car:
		insert = `INSERT INTO cars (name, description, overview, price) VALUES ($1, $2, $3, $4) RETURNING id`
		update = `UPDATE cars SET name = $1, description = $2, overview = $3, price = $4 WHERE id = $5 AND NOT is_deleted`
		args = []interface{}{e.Name, e.Description, e.Overview, e.Price}
		id = &e.ID
	case *models.Attraction:
		insert = `INSERT INTO attractions (name, description, overview, city, price) VALUES ($1, $2, $3, $4, $5) RETURNING id`
		update = `UPDATE attractions SET name = $1, description = $2, overview = $3, city = $4, price = $5 WHERE id = $6 AND NOT is_deleted`
		args = []interface{}{e.Name, e.Description, e.Overview, e.City, e.Price}
		id = &e.ID
	default:
		return fmt.Errorf("unsupported catalog entity %T", entity)
	}

	if *id == 0 {
		if err := s.db.GetContext(ctx, id, insert, args...); err != nil {
			return fmt.Errorf("failed to insert catalog entity: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, update, append(args, *id)...)
	if err != nil {
		return fmt.Errorf("failed to update catalog entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteCatalogEntity flags a live catalog row as deleted
func (s *Store) SoftDeleteCatalogEntity(ctx context.Context, t models.EntityType, id int64) error {
	table, err := catalogTable(t)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET is_deleted = TRUE WHERE id = $1 AND NOT is_deleted", table), id)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", t, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveDocuments returns a search document for every non-deleted row of one catalog type
func (s *Store) ListActiveDocuments(ctx context.Context, t models.EntityType) ([]models.SearchDocument, error) {
	return s.listDocuments(ctx, t, "NOT is_deleted")
}

func (s *Store) listDocuments(ctx context.Context, t models.EntityType, where string, args ...interface{}) ([]models.SearchDocument, error) {
	table, err := catalogTable(t)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY id", table, where)

	var entities []models.CatalogEntity
	switch t {
	case models.EntityTypeTrip:
		var rows []models.Trip
		err = s.db.SelectContext(ctx, &rows, query, args...)
		for i := range rows {
			entities = append(entities, &rows[i])
		}
	case models.EntityTypeHotel:
		var rows []models.Hotel
		err = s.db.SelectContext(ctx, &rows, query, args...)
		for i := range rows {
			entities = append(entities, &rows[i])
		}
	case models.EntityTypeCar:
		var rows []models.Car
		err = s.db.SelectContext(ctx, &rows, query, args...)
		for i := range rows {
			entities = append(entities, &rows[i])
		}
	case models.EntityTypeAttraction:
		var rows []models.Attraction
		err = s.db.SelectContext(ctx, &rows, query, args...)
		for i := range rows {
			entities = append(entities, &rows[i])
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", table, err)
	}

	docs := make([]models.SearchDocument, 0, len(entities))
	for _, e := range entities {
		docs = append(docs, e.SearchDocument())
	}
	return docs, nil
}
