package types

import "context"

// DataProvider abstracts remote list sources for filters
type DataProvider interface {
	Name() string
	FetchList(ctx context.Context, key string) ([]string, error)
	Close() error
}
