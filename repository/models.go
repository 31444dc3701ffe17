package repository

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type QueueState string

const (
	StateWaiting QueueState = "WAITING"
	StateActive  QueueState = "ACTIVE"
	StateLeft    QueueState = "LEFT"
)

type RoomState string

const (
	RoomPending RoomState = "PENDING"
	RoomOpen    RoomState = "OPEN"
	RoomPlaying RoomState = "PLAYING"
	RoomEnded   RoomState = "ENDED"
)

// Admitting: 이 상태에서 대기자를 입장시킬 수 있는지
func (s RoomState) Admitting() bool {
	return s == RoomOpen || s == RoomPlaying
}

type HallSize string

const (
	HallSmall  HallSize = "SMALL"
	HallMedium HallSize = "MEDIUM"
	HallLarge  HallSize = "LARGE"
)

func HallSizeOf(totalSeats int) HallSize {
	switch {
	case totalSeats < 1000:
		return HallSmall
	case totalSeats < 10000:
		return HallMedium
	default:
		return HallLarge
	}
}

// Room is the stored view of one room's queue.
type Room struct {
	ID         int64
	State      RoomState
	HallSize   HallSize
	TotalSeats int
	Capacity   int64

	// 현재 상한: capacity + ACTIVE 유저 이탈로 생긴 빈자리
	Total int64

	// 지금까지 ACTIVE가 된 누적 인원 (Admitted < Total 인 동안 입장)
	Admitted int64

	// WAITING 또는 ACTIVE에서 LEFT로 나간 누적 인원
	DroppedAhead int64
}

// Occupancy: 현재 ACTIVE 인원
func (r *Room) Occupancy() int64 {
	return r.Admitted - (r.Total - r.Capacity)
}

type QueueEntry struct {
	RoomID   int64
	UserID   int64
	TicketNo int64
}

// Position 대기열을 세지 않고 카운터로 추정한 값. 기다리는 동안 EstimatedAhead는 줄어들기만 한다.
type Position struct {
	TicketNo       int64
	State          QueueState
	EstimatedAhead int64
	WaitingTotal   int64
}

type Admission struct {
	UserID   int64
	TicketNo int64
}

type SeatKey struct {
	MatchID   int64
	SectionID string
	RowNumber string
}

func (k SeatKey) Validate() error {
	if k.SectionID == "" || k.RowNumber == "" {
		return fmt.Errorf("%w: empty section or row", ErrInvalidSeat)
	}
	if strings.Contains(k.SectionID, ":") || strings.Contains(k.RowNumber, ":") {
		return fmt.Errorf("%w: ':' not allowed in section[%s] row[%s]", ErrInvalidSeat, k.SectionID, k.RowNumber)
	}
	return nil
}

func (k SeatKey) String() string {
	return seatKey(k)
}

type SeatOwner struct {
	UserID int64
	Grade  string
}

type SeatState string

const (
	SeatFree SeatState = "FREE"
	SeatHeld SeatState = "HELD"
	SeatSold SeatState = "SOLD"
)

type SeatStatus struct {
	Seat  SeatKey
	State SeatState
	Owner *SeatOwner

	// 남은 선점 시간 (FREE 좌석, 영구 SOLD 좌석은 0)
	TTL time.Duration
}

// 좌석 값: 선점 중 "<userId>:<grade>", 판매 후 "<userId>:<grade>:SOLD".
// grade에는 ':'가 없으므로 필드 개수로 구분한다 (grade가 "SOLD"여도 안전).
const soldMarker = "SOLD"

func encodeSeatValue(owner SeatOwner) string {
	return strconv.FormatInt(owner.UserID, 10) + ":" + owner.Grade
}

func decodeSeatValue(v string) (SeatOwner, bool, error) {
	parts := strings.Split(v, ":")
	sold := false
	switch {
	case len(parts) == 2:
	case len(parts) == 3 && parts[2] == soldMarker:
		sold = true
	default:
		return SeatOwner{}, false, fmt.Errorf("malformed seat value %q", v)
	}
	if parts[1] == "" {
		return SeatOwner{}, false, fmt.Errorf("malformed seat value %q", v)
	}
	userID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return SeatOwner{}, false, fmt.Errorf("malformed seat owner %q: %w", parts[0], err)
	}
	return SeatOwner{UserID: userID, Grade: parts[1]}, sold, nil
}

// ReleaseResult 해제 결과
type ReleaseResult struct {
	Released bool
	WasSold  bool
	Owner    SeatOwner
}
