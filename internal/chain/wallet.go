package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TxRequest is a contract call to sign and broadcast.
type TxRequest struct {
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Wallet is the capability the gateway needs from an account provider.
type Wallet interface {
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	SubscribeAccounts(fn func(common.Address)) (unsubscribe func())
}

// Backend is the subset of *ethclient.Client used by KeyedWallet.
type Backend interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Backend = (*ethclient.Client)(nil)

// DefaultPollInterval is how often KeyedWallet checks for a mined receipt.
const DefaultPollInterval = 2 * time.Second

// KeyedWallet signs transactions with a single private key and sends them through a JSON-RPC backend.
type KeyedWallet struct {
	backend      Backend
	chainID      *big.Int
	pollInterval time.Duration
	closeFn      func()

	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	address common.Address

	subsMu  sync.Mutex
	subs    map[int]func(common.Address)
	nextSub int
}

// DialKeyedWallet connects to rpcURL and loads the hex-encoded private key.
func DialKeyedWallet(ctx context.Context, rpcURL, hexKey string, chainID int64, pollInterval time.Duration) (*KeyedWallet, error) {
	key, err := parseKey(hexKey)
	if err != nil {
		return nil, err
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}

	w := NewKeyedWallet(client, key, big.NewInt(chainID), pollInterval)
	w.closeFn = client.Close
	return w, nil
}

// NewKeyedWallet creates a wallet over an existing backend.
func NewKeyedWallet(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, pollInterval time.Duration) *KeyedWallet {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &KeyedWallet{
		backend:      backend,
		chainID:      chainID,
		pollInterval: pollInterval,
		key:          key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		subs:         make(map[int]func(common.Address)),
	}
}

func parseKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// Close releases the underlying RPC connection.
func (w *KeyedWallet) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// Address returns the active account.
func (w *KeyedWallet) Address() common.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.address
}

// RequestAccounts returns the active account.
func (w *KeyedWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{w.Address()}, nil
}

// BalanceAt returns the latest balance of account in wei.
func (w *KeyedWallet) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return w.backend.BalanceAt(ctx, account, nil)
}

// CallContract executes a read-only call against the latest block.
func (w *KeyedWallet) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	if msg.From == (common.Address{}) {
		msg.From = w.Address()
	}
	return w.backend.CallContract(ctx, msg, nil)
}

// SendTransaction signs req as an EIP-1559 transaction and broadcasts it.
func (w *KeyedWallet) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	w.mu.RLock()
	key, from := w.key, w.address
	w.mu.RUnlock()

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := w.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}

	tip, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas tip: %w", err)
	}

	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return common.Hash{}, fmt.Errorf("latest header: %w", err)
	}

	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	to := req.To
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  req.Data,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
		Data:      req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}

	return signed.Hash(), nil
}

// WaitForReceipt polls until the transaction is mined or ctx is done.
func (w *KeyedWallet) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// SwitchAccount replaces the signing key and notifies account subscribers.
func (w *KeyedWallet) SwitchAccount(hexKey string) error {
	key, err := parseKey(hexKey)
	if err != nil {
		return err
	}

	address := crypto.PubkeyToAddress(key.PublicKey)
	w.mu.Lock()
	w.key = key
	w.address = address
	w.mu.Unlock()

	w.subsMu.Lock()
	listeners := make([]func(common.Address), 0, len(w.subs))
	for _, fn := range w.subs {
		listeners = append(listeners, fn)
	}
	w.subsMu.Unlock()

	for _, fn := range listeners {
		fn(address)
	}
	return nil
}

// SubscribeAccounts registers fn to be called after every account switch.
func (w *KeyedWallet) SubscribeAccounts(fn func(common.Address)) func() {
	w.subsMu.Lock()
	id := w.nextSub
	w.nextSub++
	w.subs[id] = fn
	w.subsMu.Unlock()

	return func() {
		w.subsMu.Lock()
		delete(w.subs, id)
		w.subsMu.Unlock()
	}
}
