package manufacturer

import "context"

// Repository provides read access to the manufacturer catalog.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Config, error)
	List(ctx context.Context) ([]*Config, error)
}
