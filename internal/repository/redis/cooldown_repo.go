package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// CooldownRepo реализует repository.CooldownRepository поверх Redis.
// Ключ cd:{chain}:{address} живет ровно окно кулдауна; SET NX служит
// точкой сериализации между параллельными запросами на один адрес.
type CooldownRepo struct {
	client redis.UniversalClient
	ctx    context.Context
}

// NewCooldownRepo создает новый репозиторий кулдаунов и возвращает ошибку при проблемах
func NewCooldownRepo(client redis.UniversalClient) (*CooldownRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for CooldownRepo")
	}
	return &CooldownRepo{
		client: client,
		ctx:    context.Background(),
	}, nil
}

func cooldownKey(chain, address string) string {
	return fmt.Sprintf("cd:%s:%s", chain, address)
}

// Acquire пытается занять кулдаун. Возвращает false, если окно еще не истекло.
func (r *CooldownRepo) Acquire(chain, address string, window time.Duration) (bool, error) {
	return r.client.SetNX(r.ctx, cooldownKey(chain, address), time.Now().Unix(), window).Result()
}

// Remaining возвращает оставшееся время кулдауна (0, если кулдауна нет)
func (r *CooldownRepo) Remaining(chain, address string) (time.Duration, error) {
	ttl, err := r.client.TTL(r.ctx, cooldownKey(chain, address)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Release снимает кулдаун (используется при откате неудавшейся выдачи)
func (r *CooldownRepo) Release(chain, address string) error {
	return r.client.Del(r.ctx, cooldownKey(chain, address)).Err()
}
