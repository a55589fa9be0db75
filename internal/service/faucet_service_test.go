package service

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/DevSwayam/faucet-attenomics/internal/config"
	"github.com/DevSwayam/faucet-attenomics/pkg/evm"
)

// ============================================================================
// Моки для FaucetService
// ============================================================================

// MockChainClient реализует evm.Client
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainClient) WalletBalance(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockChainClient) Transfer(ctx context.Context, to common.Address, amount *big.Int) (common.Hash, error) {
	args := m.Called(ctx, to, amount)
	return args.Get(0).(common.Hash), args.Error(1)
}

func (m *MockChainClient) WalletAddress() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *MockChainClient) Close() {
	m.Called()
}

// MockCooldownRepo реализует repository.CooldownRepository
type MockCooldownRepo struct {
	mock.Mock
}

func (m *MockCooldownRepo) Acquire(chain, address string, window time.Duration) (bool, error) {
	args := m.Called(chain, address, window)
	return args.Bool(0), args.Error(1)
}

func (m *MockCooldownRepo) Remaining(chain, address string) (time.Duration, error) {
	args := m.Called(chain, address)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockCooldownRepo) Release(chain, address string) error {
	args := m.Called(chain, address)
	return args.Error(0)
}

const dripAddress = "0x8ba1f109551bD432803012645Ac136ddd64DBA72"

var dripTxHash = common.HexToHash("0xabc123")

func testFaucetConfig() config.FaucetConfig {
	return config.FaucetConfig{
		CooldownMinutes: 60,
		Chains: map[string]config.ChainConfig{
			"sepolia": {
				ChainID:       11155111,
				RPCURL:        "http://localhost:8545",
				DripAmountWei: "50000000000000000",  // 0.05 ETH
				MinBalanceWei: "100000000000000000", // 0.1 ETH
				ExplorerURL:   "https://sepolia.etherscan.io",
				Enabled:       true,
			},
		},
	}
}

func newTestFaucetService(t *testing.T, client *MockChainClient, cooldown *MockCooldownRepo) *FaucetService {
	svc, err := NewFaucetService(
		testFaucetConfig(),
		map[string]evm.Client{"sepolia": client},
		cooldown,
		&NoopEmailService{},
		"",
		nil,
	)
	require.NoError(t, err)
	return svc
}

// ============================================================================
// Drip
// ============================================================================

func TestFaucetService_Drip_RejectsMalformedAddress(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	_, err := svc.Drip(context.Background(), "not-an-address", "sepolia", false)

	assert.ErrorIs(t, err, ErrInvalidAddress)
	client.AssertNotCalled(t, "BalanceAt", mock.Anything, mock.Anything)
}

func TestFaucetService_Drip_RejectsUnknownChain(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	_, err := svc.Drip(context.Background(), dripAddress, "dogechain", false)

	assert.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestFaucetService_Drip_DeclinesWhenBalanceSufficient(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	cooldown.On("Acquire", "sepolia", dripAddress, mock.AnythingOfType("time.Duration")).Return(true, nil)
	cooldown.On("Release", "sepolia", dripAddress).Return(nil)

	// Баланс уже выше min_balance: перевода быть не должно
	richBalance, _ := new(big.Int).SetString("200000000000000000", 10)
	client.On("BalanceAt", mock.Anything, common.HexToAddress(dripAddress)).Return(richBalance, nil)

	result, err := svc.Drip(context.Background(), dripAddress, "sepolia", false)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, richBalance.String(), result.Balance)
	assert.Empty(t, result.TxHash)
	client.AssertNotCalled(t, "Transfer", mock.Anything, mock.Anything, mock.Anything)
	cooldown.AssertCalled(t, "Release", "sepolia", dripAddress)
}

func TestFaucetService_Drip_TransfersWhenBelowThreshold(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	cooldown.On("Acquire", "sepolia", dripAddress, mock.AnythingOfType("time.Duration")).Return(true, nil)

	client.On("BalanceAt", mock.Anything, common.HexToAddress(dripAddress)).Return(big.NewInt(0), nil)
	expectedAmount, _ := new(big.Int).SetString("50000000000000000", 10)
	client.On("Transfer", mock.Anything, common.HexToAddress(dripAddress), expectedAmount).Return(dripTxHash, nil)

	result, err := svc.Drip(context.Background(), dripAddress, "sepolia", false)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "sepolia", result.Chain)
	assert.Equal(t, dripTxHash.Hex(), result.TxHash)
	assert.Equal(t, expectedAmount.String(), result.Amount)
	assert.Equal(t, "https://sepolia.etherscan.io/tx/"+dripTxHash.Hex(), result.ExplorerURL)
}

func TestFaucetService_Drip_CooldownActive(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	cooldown.On("Acquire", "sepolia", dripAddress, mock.AnythingOfType("time.Duration")).Return(false, nil)
	cooldown.On("Remaining", "sepolia", dripAddress).Return(42*time.Minute, nil)

	result, err := svc.Drip(context.Background(), dripAddress, "sepolia", false)

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "cooldown")
	client.AssertNotCalled(t, "BalanceAt", mock.Anything, mock.Anything)
}

func TestFaucetService_Drip_CooldownMessageOmitsUnknownRemaining(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	cooldown.On("Acquire", "sepolia", dripAddress, mock.AnythingOfType("time.Duration")).Return(false, nil)
	cooldown.On("Remaining", "sepolia", dripAddress).Return(time.Duration(0), assert.AnError)

	result, err := svc.Drip(context.Background(), dripAddress, "sepolia", false)

	// Остаток неизвестен: сообщение без длительности, а не «try again in 0s»
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Faucet cooldown active", result.Message)
	assert.NotContains(t, result.Message, "0s")
}

func TestFaucetService_Drip_BypassSkipsCooldown(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	client.On("BalanceAt", mock.Anything, common.HexToAddress(dripAddress)).Return(big.NewInt(0), nil)
	client.On("Transfer", mock.Anything, common.HexToAddress(dripAddress), mock.AnythingOfType("*big.Int")).Return(dripTxHash, nil)

	result, err := svc.Drip(context.Background(), dripAddress, "sepolia", true)

	require.NoError(t, err)
	assert.True(t, result.Success)
	cooldown.AssertNotCalled(t, "Acquire", mock.Anything, mock.Anything, mock.Anything)
}

func TestFaucetService_Drip_TransferFailureReleasesCooldown(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)
	svc := newTestFaucetService(t, client, cooldown)

	cooldown.On("Acquire", "sepolia", dripAddress, mock.AnythingOfType("time.Duration")).Return(true, nil)
	cooldown.On("Release", "sepolia", dripAddress).Return(nil)

	client.On("BalanceAt", mock.Anything, common.HexToAddress(dripAddress)).Return(big.NewInt(0), nil)
	client.On("Transfer", mock.Anything, common.HexToAddress(dripAddress), mock.AnythingOfType("*big.Int")).
		Return(common.Hash{}, assert.AnError)

	_, err := svc.Drip(context.Background(), dripAddress, "sepolia", false)

	assert.ErrorIs(t, err, ErrChainUnavailable)
	cooldown.AssertCalled(t, "Release", "sepolia", dripAddress)
}

// ============================================================================
// Chains
// ============================================================================

func TestFaucetService_Chains_ListsEnabledOnly(t *testing.T) {
	client := new(MockChainClient)
	cooldown := new(MockCooldownRepo)

	cfg := testFaucetConfig()
	cfg.Chains["disabled"] = config.ChainConfig{ChainID: 1, RPCURL: "http://x", DripAmountWei: "1", Enabled: false}

	svc, err := NewFaucetService(cfg, map[string]evm.Client{"sepolia": client}, cooldown, &NoopEmailService{}, "", nil)
	require.NoError(t, err)

	chains := svc.Chains()

	require.Len(t, chains, 1)
	assert.Equal(t, "sepolia", chains[0].Name)
	assert.Equal(t, int64(11155111), chains[0].ChainID)
	assert.Equal(t, "50000000000000000", chains[0].DripAmount)
}
