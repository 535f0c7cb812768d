package redis

import (
	"autoride/internal/chain"
	"autoride/internal/service"
)

// Ensure concrete types implement the interfaces their consumers declare.
var (
	_ chain.QuoteCache     = (*CacheStore)(nil)
	_ service.WalletLocker = (*LockStore)(nil)
)
