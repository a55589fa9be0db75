package service

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DevSwayam/faucet-attenomics/internal/config"
	"github.com/DevSwayam/faucet-attenomics/internal/domain/repository"
	"github.com/DevSwayam/faucet-attenomics/internal/events"
	"github.com/DevSwayam/faucet-attenomics/pkg/evm"
)

// DripResult is the structured outcome of a faucet request. Failures of
// external collaborators are folded into it instead of propagating: the
// HTTP handler never sees a panic out of Drip.
type DripResult struct {
	Success     bool   `json:"success"`
	Chain       string `json:"chain,omitempty"`
	TxHash      string `json:"txHash,omitempty"`
	Amount      string `json:"amount,omitempty"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	// Balance is reported when the transfer is declined because the
	// requester already holds enough funds.
	Balance string `json:"balance,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChainInfo describes one chain in the public catalog.
type ChainInfo struct {
	Name       string `json:"name"`
	ChainID    int64  `json:"chainId"`
	DripAmount string `json:"dripAmount"`
	Explorer   string `json:"explorer,omitempty"`
}

// chainRuntime держит распарсенную конфигурацию сети и ее клиента
type chainRuntime struct {
	cfg        config.ChainConfig
	client     evm.Client
	dripAmount *big.Int
	minBalance *big.Int
}

// FaucetService выдает тестовые средства на настроенных сетях.
// Клиенты сетей конструируются явно и передаются внутрь — никаких
// процессных синглтонов; нонс горячего кошелька сериализуется внутри
// клиента (per-chain single writer).
type FaucetService struct {
	chains       map[string]*chainRuntime
	cooldownRepo repository.CooldownRepository
	cooldown     time.Duration
	emailService EmailService
	alertEmail   string
	alertBelow   *big.Int
	hub          *events.Hub
}

// NewFaucetService создает сервис фасета поверх готовых клиентов сетей.
// clients — ключи должны совпадать с именами включенных сетей конфигурации.
func NewFaucetService(
	cfg config.FaucetConfig,
	clients map[string]evm.Client,
	cooldownRepo repository.CooldownRepository,
	emailService EmailService,
	alertEmail string,
	hub *events.Hub,
) (*FaucetService, error) {
	if cooldownRepo == nil {
		return nil, fmt.Errorf("cooldown repository is required")
	}
	if emailService == nil {
		emailService = &NoopEmailService{}
	}

	chains := make(map[string]*chainRuntime)
	for name, chainCfg := range cfg.Chains {
		if !chainCfg.Enabled {
			continue
		}
		client, ok := clients[name]
		if !ok {
			return nil, fmt.Errorf("no client constructed for enabled chain '%s'", name)
		}

		drip, ok := new(big.Int).SetString(chainCfg.DripAmountWei, 10)
		if !ok || drip.Sign() <= 0 {
			return nil, fmt.Errorf("chain '%s': invalid drip_amount_wei '%s'", name, chainCfg.DripAmountWei)
		}
		minBalance := big.NewInt(0)
		if chainCfg.MinBalanceWei != "" {
			minBalance, ok = new(big.Int).SetString(chainCfg.MinBalanceWei, 10)
			if !ok || minBalance.Sign() < 0 {
				return nil, fmt.Errorf("chain '%s': invalid min_balance_wei '%s'", name, chainCfg.MinBalanceWei)
			}
		}

		chains[strings.ToLower(name)] = &chainRuntime{
			cfg:        chainCfg,
			client:     client,
			dripAmount: drip,
			minBalance: minBalance,
		}
	}
	if len(chains) == 0 {
		return nil, fmt.Errorf("at least one enabled chain is required")
	}

	var alertBelow *big.Int
	if cfg.LowBalanceAlertWei != "" {
		var ok bool
		alertBelow, ok = new(big.Int).SetString(cfg.LowBalanceAlertWei, 10)
		if !ok {
			return nil, fmt.Errorf("invalid low_balance_alert_wei '%s'", cfg.LowBalanceAlertWei)
		}
	}

	return &FaucetService{
		chains:       chains,
		cooldownRepo: cooldownRepo,
		cooldown:     cfg.Cooldown(),
		emailService: emailService,
		alertEmail:   alertEmail,
		alertBelow:   alertBelow,
		hub:          hub,
	}, nil
}

// Chains возвращает каталог включенных сетей, отсортированный по имени
func (s *FaucetService) Chains() []ChainInfo {
	infos := make([]ChainInfo, 0, len(s.chains))
	for name, rt := range s.chains {
		infos = append(infos, ChainInfo{
			Name:       name,
			ChainID:    rt.cfg.ChainID,
			DripAmount: rt.dripAmount.String(),
			Explorer:   rt.cfg.ExplorerURL,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Drip выдает фиксированную сумму на адрес в указанной сети.
// bypassCooldown=true пропускает окно кулдауна (путь с кодом доступа).
func (s *FaucetService) Drip(ctx context.Context, address, chain string, bypassCooldown bool) (*DripResult, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidAddress, address)
	}
	chain = strings.ToLower(chain)
	rt, ok := s.chains[chain]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnsupportedChain, chain)
	}
	to := common.HexToAddress(address)

	if !bypassCooldown {
		acquired, err := s.cooldownRepo.Acquire(chain, to.Hex(), s.cooldown)
		if err != nil {
			// Redis недоступен: пропускаем запрос (fail-open), но логируем
			log.Printf("[FaucetService] Ошибка кулдауна для %s/%s: %v. Пропускаем (fail-open).", chain, to.Hex(), err)
		} else if !acquired {
			msg := "Faucet cooldown active"
			remaining, err := s.cooldownRepo.Remaining(chain, to.Hex())
			if err != nil {
				log.Printf("[FaucetService] Не удалось прочитать остаток кулдауна для %s/%s: %v", chain, to.Hex(), err)
			} else if remaining > 0 {
				msg = fmt.Sprintf("Faucet cooldown active, try again in %s", remaining.Round(time.Minute))
			}
			return &DripResult{
				Success: false,
				Chain:   chain,
				Message: msg,
			}, nil
		}
	}

	balance, err := rt.client.BalanceAt(ctx, to)
	if err != nil {
		s.releaseCooldown(chain, to.Hex(), bypassCooldown)
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	// Баланс выше порога: отчитываемся текущим балансом и отказываем без перевода
	if rt.minBalance.Sign() > 0 && balance.Cmp(rt.minBalance) >= 0 {
		s.releaseCooldown(chain, to.Hex(), bypassCooldown)
		return &DripResult{
			Success: false,
			Chain:   chain,
			Balance: balance.String(),
			Message: "Address already has sufficient balance",
		}, nil
	}

	txHash, err := rt.client.Transfer(ctx, to, rt.dripAmount)
	if err != nil {
		s.releaseCooldown(chain, to.Hex(), bypassCooldown)
		return nil, fmt.Errorf("%w: %v", ErrChainUnavailable, err)
	}

	result := &DripResult{
		Success:     true,
		Chain:       chain,
		TxHash:      txHash.Hex(),
		Amount:      rt.dripAmount.String(),
		ExplorerURL: explorerTxURL(rt.cfg.ExplorerURL, txHash.Hex()),
	}

	log.Printf("[FaucetService] Выдано %s wei на %s (chain=%s, tx=%s)", rt.dripAmount, to.Hex(), chain, txHash.Hex())

	if s.hub != nil {
		s.hub.Publish(events.TypeFaucetDrip, result)
	}
	s.checkWalletBalance(chain, rt)

	return result, nil
}

// releaseCooldown снимает кулдаун при неудавшейся выдаче, чтобы не
// штрафовать пользователя за ошибку на нашей стороне
func (s *FaucetService) releaseCooldown(chain, address string, bypassed bool) {
	if bypassed {
		return
	}
	if err := s.cooldownRepo.Release(chain, address); err != nil {
		log.Printf("[FaucetService] Не удалось снять кулдаун %s/%s: %v", chain, address, err)
	}
}

// checkWalletBalance отправляет email-уведомление, когда баланс горячего
// кошелька падает ниже порога. Не чаще раза в сутки на сеть.
func (s *FaucetService) checkWalletBalance(chain string, rt *chainRuntime) {
	if s.alertBelow == nil || s.alertEmail == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		balance, err := rt.client.WalletBalance(ctx)
		if err != nil {
			log.Printf("[FaucetService] Не удалось прочитать баланс кошелька (chain=%s): %v", chain, err)
			return
		}
		if balance.Cmp(s.alertBelow) >= 0 {
			return
		}

		acquired, err := s.cooldownRepo.Acquire("alert:"+chain, rt.client.WalletAddress().Hex(), 24*time.Hour)
		if err != nil || !acquired {
			return
		}

		wallet := rt.client.WalletAddress().Hex()
		if err := s.emailService.SendLowBalanceAlert(ctx, s.alertEmail, chain, wallet, balance.String()); err != nil {
			log.Printf("[FaucetService] Не удалось отправить алерт о низком балансе (chain=%s): %v", chain, err)
		}
	}()
}

func explorerTxURL(base, txHash string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/tx/" + txHash
}
