package repository

import "time"

// CooldownRepository определяет методы для учета кулдаунов фасета.
// Ключом служит пара (chain, address); запись живет ровно окно кулдауна.
type CooldownRepository interface {
	// Acquire пытается занять кулдаун. Возвращает false, если окно еще не истекло.
	Acquire(chain, address string, window time.Duration) (bool, error)
	// Remaining возвращает оставшееся время кулдауна (0, если кулдауна нет)
	Remaining(chain, address string) (time.Duration, error)
	// Release снимает кулдаун (используется при откате неудавшейся выдачи)
	Release(chain, address string) error
}
