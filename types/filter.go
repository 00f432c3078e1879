package types

import (
	"context"
	"errors"
	"fmt"

	"cosmossdk.io/log"
)

// TransferFilter rejects transfer requests before anything is signed or submitted
type TransferFilter interface {
	Name() string
	Filter(ctx context.Context, req TransferRequest) (reject bool, reason string, err error)
	Close() error
}

// FilterRegistry manages transfer filters
type FilterRegistry struct {
	filters []TransferFilter
	logger  log.Logger
}

// NewFilterRegistry creates a new filter registry
func NewFilterRegistry(logger log.Logger) *FilterRegistry {
	return &FilterRegistry{
		filters: make([]TransferFilter, 0),
		logger:  logger,
	}
}

func (r *FilterRegistry) Register(filter TransferFilter) {
	r.filters = append(r.filters, filter)
	r.logger.Debug("Registered filter", "name", filter.Name())
}

func (r *FilterRegistry) Len() int {
	return len(r.filters)
}

// Filter runs every filter in registration order. A filter that errors rejects the request.
func (r *FilterRegistry) Filter(ctx context.Context, req TransferRequest) (reject bool, reason string) {
	for _, filter := range r.filters {
		rejected, filterReason, err := filter.Filter(ctx, req)
		if err != nil {
			r.logger.Error("Filter error", "filter", filter.Name(), "error", err)
			return true, fmt.Sprintf("filter %s failed: %v", filter.Name(), err)
		}
		if rejected {
			return true, filterReason
		}
	}
	return false, ""
}

// Close closes every filter, returning all close errors joined
func (r *FilterRegistry) Close() error {
	var errs []error
	for _, filter := range r.filters {
		if err := filter.Close(); err != nil {
			r.logger.Error("Error closing filter", "filter", filter.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", filter.Name(), err))
		}
	}
	return errors.Join(errs...)
}
