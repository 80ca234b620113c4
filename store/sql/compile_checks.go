package sqlstore

import "github.com/goliatone/go-quickbooks/core"

var (
	_ core.ConnectionStore        = (*ConnectionStore)(nil)
	_ core.ConnectionStore        = (*CachedConnectionStore)(nil)
	_ core.AttemptStore           = (*AttemptStore)(nil)
	_ core.AttemptPruner          = (*AttemptStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
	_ core.TokenCodecReceiver     = (*RepositoryFactory)(nil)
)
