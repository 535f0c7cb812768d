package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"autoride/internal/chain"
	"autoride/internal/config"
	"autoride/internal/logger"
)

// NewGateway builds the contract gateway. Without an RPC URL and key the gateway
// has no wallet and every chain operation reports it as unavailable.
// The returned close function releases the RPC connection.
func NewGateway(ctx context.Context, cfg config.ChainConfig, cache chain.QuoteCache, log *logger.Logger) (*chain.Gateway, func(), error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, nil, fmt.Errorf("invalid contract address %q", cfg.ContractAddress)
	}
	contract := common.HexToAddress(cfg.ContractAddress)

	if !cfg.Enabled() {
		log.Warn("chain wallet not configured, ride requests are disabled")
		return chain.NewGateway(nil, contract, cache, log), func() {}, nil
	}

	wallet, err := chain.DialKeyedWallet(ctx, cfg.RPCURL, cfg.PrivateKey, cfg.ChainID, cfg.PollInterval)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect wallet: %w", err)
	}

	log.WithField("account", wallet.Address().Hex()).
		WithField("contract", contract.Hex()).
		WithField("chain_id", cfg.ChainID).
		Info("chain wallet connected")

	return chain.NewGateway(wallet, contract, cache, log), wallet.Close, nil
}
