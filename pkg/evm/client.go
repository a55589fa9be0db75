// Package evm wraps an EVM JSON-RPC client behind the small surface the
// faucet needs: balance reads and value transfers from a single hot wallet.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// transferGasLimit is the fixed gas limit of a plain value transfer.
const transferGasLimit = 21000

// defaultReceiptTimeout bounds how long a drip waits for confirmation.
const defaultReceiptTimeout = 90 * time.Second

// Client is the chain surface the faucet dispatcher depends on.
type Client interface {
	// BalanceAt returns the current balance of an address.
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	// WalletBalance returns the hot wallet balance.
	WalletBalance(ctx context.Context) (*big.Int, error)
	// Transfer sends amount wei from the hot wallet and waits for the receipt.
	Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error)
	// WalletAddress returns the hot wallet address.
	WalletAddress() common.Address
	Close()
}

// ChainClient implements Client over go-ethereum's ethclient.
type ChainClient struct {
	ec      *ethclient.Client
	chainID *big.Int
	key     *ecdsa.PrivateKey
	from    common.Address

	// mu serializes nonce acquisition and submission: the hot wallet nonce
	// is shared mutable state across concurrent drips on one chain.
	mu sync.Mutex
}

// Dial connects to an RPC endpoint and binds the hot wallet key to it.
// The key is hex without the 0x prefix.
func Dial(rpcURL string, chainID int64, privateKeyHex string) (*ChainClient, error) {
	key, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid faucet private key: %w", err)
	}

	ec, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", rpcURL, err)
	}

	return &ChainClient{
		ec:      ec,
		chainID: big.NewInt(chainID),
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (c *ChainClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	balance, err := c.ec.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s: %w", address.Hex(), err)
	}
	return balance, nil
}

func (c *ChainClient) WalletBalance(ctx context.Context) (*big.Int, error) {
	return c.BalanceAt(ctx, c.from)
}

func (c *ChainClient) WalletAddress() common.Address {
	return c.from
}

// Transfer builds, signs and submits a plain value transfer, then waits for
// the receipt. Submission is serialized per chain so concurrent drips cannot
// race on the wallet nonce.
func (c *ChainClient) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	signedTx, err := c.submit(ctx, to, amount)
	if err != nil {
		return common.Hash{}, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, defaultReceiptTimeout)
	defer cancel()

	receipt, err := bind.WaitMined(waitCtx, c.ec, signedTx)
	if err != nil {
		return signedTx.Hash(), fmt.Errorf("transfer %s not confirmed: %w", signedTx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return signedTx.Hash(), fmt.Errorf("transfer %s reverted", signedTx.Hash().Hex())
	}
	return signedTx.Hash(), nil
}

// submit holds the nonce lock only for the build-sign-send window, not for
// the confirmation wait.
func (c *ChainClient) submit(ctx context.Context, to common.Address, amount *big.Int) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get pending nonce: %w", err)
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, to, amount, transferGasLimit, gasPrice, nil)
	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transfer: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("failed to send transfer: %w", err)
	}
	return signedTx, nil
}

func (c *ChainClient) Close() {
	c.ec.Close()
}
