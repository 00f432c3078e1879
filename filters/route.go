package filters

import (
	"context"
	"fmt"

	"github.com/strangelove-ventures/cctp-transfer/types"
)

var _ types.TransferFilter = (*RouteFilter)(nil)

// RouteFilter rejects transfers over routes that are not enabled
type RouteFilter struct {
	enabledRoutes map[types.Domain][]types.Domain
}

func NewRouteFilter(enabledRoutes map[types.Domain][]types.Domain) *RouteFilter {
	return &RouteFilter{enabledRoutes: enabledRoutes}
}

func (f *RouteFilter) Name() string {
	return "route"
}

func (f *RouteFilter) Filter(_ context.Context, req types.TransferRequest) (bool, string, error) {
	destDomains, ok := f.enabledRoutes[req.SourceDomain]
	if !ok {
		reason := fmt.Sprintf("route disabled: source_domain=%d dest_domain=%d (source not configured)",
			req.SourceDomain, req.DestinationDomain)
		return true, reason, nil
	}
	for _, dd := range destDomains {
		if dd == req.DestinationDomain {
			return false, "", nil
		}
	}
	reason := fmt.Sprintf("route disabled: source_domain=%d dest_domain=%d (destination not in route)",
		req.SourceDomain, req.DestinationDomain)
	return true, reason, nil
}

func (f *RouteFilter) Close() error {
	return nil
}
