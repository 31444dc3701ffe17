package repository

import (
	"context"
	"time"
)

/*
 * QueueRepository
 * Owns the per-room queue keyspace: sequencer, waiting order, per-user
 * state, offset and capacity counters. Every mutation is one Lua script.
 */

type QueueRepository interface {
	// 방 생명주기
	InitRoom(ctx context.Context, room Room, state RoomState) (current RoomState, created bool, err error)
	SetRoomState(ctx context.Context, roomID int64, to RoomState, from ...RoomState) (RoomState, error)
	SetCapacity(ctx context.Context, roomID int64, capacity int64) (oldCapacity int64, total int64, err error)
	GetRoom(ctx context.Context, roomID int64) (*Room, error)
	ListRooms(ctx context.Context) ([]int64, error)
	ForgetRoom(ctx context.Context, roomID int64) error

	// 가상 대기열
	Enqueue(ctx context.Context, roomID, userID int64) (int64, error)
	Leave(ctx context.Context, roomID, userID int64) (QueueState, error)
	Position(ctx context.Context, roomID, userID int64) (*Position, error)

	// 입장
	AdmitBatch(ctx context.Context, roomID int64, batch int) ([]Admission, error)
	CloseQueue(ctx context.Context, roomID int64, batch int) (processed int, left []int64, err error)
}

/*
 * SeatLockRepository
 * Owns the per-match seat keyspace. A seat key exists iff the seat is
 * held or sold.
 */

type SeatLockRepository interface {
	TryReserve(ctx context.Context, seat SeatKey, owner SeatOwner, ttl time.Duration) (bool, error)
	FindOwnerWithGrade(ctx context.Context, seat SeatKey) (*SeatOwner, error)
	SeatStatus(ctx context.Context, seat SeatKey) (*SeatStatus, error)
	Release(ctx context.Context, seat SeatKey, userID int64) (ReleaseResult, error)
	ConfirmSale(ctx context.Context, seat SeatKey, userID int64, soldTTL time.Duration) (SeatOwner, bool, error)

	// 매치 종료 정리
	CloseMatch(ctx context.Context, matchID int64, ttl time.Duration) error
	SweepHeld(ctx context.Context, matchID int64, released func(SeatKey, SeatOwner)) (int, error)
}

/*
 * EventPublisher
 * At-least-once hand-off to the external bus. Consumers dedupe.
 */

type EventPublisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
	Close() error
}

/*
 * PurchaseRepository
 * Durable record of sold seats, written by the purchase worker.
 */

type PurchaseRepository interface {
	SavePurchase(p *Purchase) (bool, error)
	ExistsPurchase(seat SeatKey) (bool, error)
	DeletePurchase(seat SeatKey, userID int64) error
}
