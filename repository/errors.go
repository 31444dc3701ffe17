package repository

import "errors"

// Sentinel errors shared by the stores and surfaced unchanged to callers.
var (
	ErrAlreadyQueued = errors.New("already queued")
	ErrNotQueued     = errors.New("not queued")
	ErrNotOwner      = errors.New("not seat owner")
	ErrExpired       = errors.New("seat hold expired")
	ErrMatchClosed   = errors.New("match closed")
	ErrRoomNotFound  = errors.New("room not found")

	// 일시적 장애. 실제로 적용되었을 수도 있으므로 호출 측이 backoff로 재시도
	ErrStoreUnavailable = errors.New("store unavailable")

	ErrInvalidCapacity = errors.New("invalid capacity")
	ErrInvalidSeat     = errors.New("invalid seat")
)

// IsTransient: 재시도할 가치가 있는 에러인지 확인
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
