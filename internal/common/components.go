package common

const (
	ComponentSynchronizer = "synchronizer"
	ComponentChainReader  = "chain-reader"
	ComponentOwnerFetcher = "owner-fetcher"
	ComponentLogTracker   = "log-tracker"
	ComponentTierResolver = "tier-resolver"
	ComponentCacheStore   = "cache-store"
	ComponentMaintenance  = "maintenance"
	ComponentRPC          = "rpc"
	ComponentAPI          = "api"
)

var AllComponents = map[string]struct{}{
	ComponentSynchronizer: {},
	ComponentChainReader:  {},
	ComponentOwnerFetcher: {},
	ComponentLogTracker:   {},
	ComponentTierResolver: {},
	ComponentCacheStore:   {},
	ComponentMaintenance:  {},
	ComponentRPC:          {},
	ComponentAPI:          {},
}
