package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var reserveScript = redis.NewScript(`
    local seat_key = KEYS[1]
    local status_key = KEYS[2]
    local index_key = KEYS[3]

    -- 1. 종료된 매치는 선점 불가
    if redis.call("GET", status_key) == "CLOSED" then
        return -1
    end
    -- 2. 비어 있을 때만 TTL과 함께 선점
    if not redis.call("SET", seat_key, ARGV[1], "NX", "PX", ARGV[2]) then
        return 0
    end
    redis.call("SADD", index_key, seat_key)
    return 1
`)

// TryReserve: 좌석 키가 없을 때만 생성 (이번 호출이 만들었을 때만 true).
// 응답 유실 후 같은 유저가 재시도하면 false이므로 호출 측에서 소유자를 확인해야 한다.
func (r *RedisRepository) TryReserve(ctx context.Context, seat SeatKey, owner SeatOwner, ttl time.Duration) (bool, error) {
	if err := seat.Validate(); err != nil {
		return false, err
	}
	if owner.Grade == "" || strings.Contains(owner.Grade, ":") {
		return false, fmt.Errorf("%w: grade %q", ErrInvalidSeat, owner.Grade)
	}
	if ttl <= 0 {
		return false, fmt.Errorf("%w: non-positive hold ttl %v", ErrInvalidSeat, ttl)
	}

	keys := []string{seatKey(seat), matchStatusKey(seat.MatchID), seatIndexKey(seat.MatchID)}
	args := []interface{}{encodeSeatValue(owner), ttl.Milliseconds()}

	code, err := reserveScript.Run(ctx, r.Client, keys, args...).Int()
	if err != nil {
		return false, storeErr("reserve seat", err)
	}
	switch code {
	case 1:
		return true, nil
	case 0:
		return false, nil
	case -1:
		return false, fmt.Errorf("match %d: %w", seat.MatchID, ErrMatchClosed)
	default:
		return false, fmt.Errorf("reserve seat: unknown result code %d", code)
	}
}

func (r *RedisRepository) FindOwnerWithGrade(ctx context.Context, seat SeatKey) (*SeatOwner, error) {
	val, err := r.Client.Get(ctx, seatKey(seat)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find owner", err)
	}
	owner, _, err := decodeSeatValue(val)
	if err != nil {
		return nil, err
	}
	return &owner, nil
}

func (r *RedisRepository) SeatStatus(ctx context.Context, seat SeatKey) (*SeatStatus, error) {
	key := seatKey(seat)
	pipe := r.Client.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("seat status", err)
	}

	status := &SeatStatus{Seat: seat, State: SeatFree}
	val, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return status, nil
	}
	owner, sold, err := decodeSeatValue(val)
	if err != nil {
		return nil, err
	}
	status.Owner = &owner
	status.State = SeatHeld
	if sold {
		status.State = SeatSold
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		status.TTL = ttl
	}
	return status, nil
}

var releaseScript = redis.NewScript(`
    local seat_key = KEYS[1]
    local index_key = KEYS[2]

    local value = redis.call("GET", seat_key)
    if not value then
        return {0, ""}
    end
    -- 소유자 본인만 해제 가능
    local owner = string.match(value, "^([^:]+):")
    if owner ~= ARGV[1] then
        return {-1, value}
    end
    redis.call("DEL", seat_key)
    redis.call("SREM", index_key, seat_key)
    return {1, value}
`)

// Release: 소유자일 때만 좌석 삭제. 빈 좌석은 무시, 다른 유저의 좌석이면 ErrNotOwner
func (r *RedisRepository) Release(ctx context.Context, seat SeatKey, userID int64) (ReleaseResult, error) {
	if err := seat.Validate(); err != nil {
		return ReleaseResult{}, err
	}
	keys := []string{seatKey(seat), seatIndexKey(seat.MatchID)}

	result, err := releaseScript.Run(ctx, r.Client, keys, strconv.FormatInt(userID, 10)).Result()
	if err != nil {
		return ReleaseResult{}, storeErr("release seat", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return ReleaseResult{}, fmt.Errorf("release seat: unexpected lua script result %v", result)
	}
	code, _ := toInt64(res[0])
	switch code {
	case 0:
		return ReleaseResult{}, nil
	case -1:
		return ReleaseResult{}, fmt.Errorf("seat %s user %d: %w", seat, userID, ErrNotOwner)
	case 1:
		value, _ := res[1].(string)
		owner, sold, err := decodeSeatValue(value)
		if err != nil {
			return ReleaseResult{Released: true}, err
		}
		return ReleaseResult{Released: true, WasSold: sold, Owner: owner}, nil
	default:
		return ReleaseResult{}, fmt.Errorf("release seat: unknown result code %d", code)
	}
}

var confirmScript = redis.NewScript(`
    local seat_key = KEYS[1]
    local status_key = KEYS[2]
    local sold_ttl = tonumber(ARGV[2])

    local value = redis.call("GET", seat_key)
    if not value then
        return {0, ""}
    end
    -- 1. 소유자 확인
    local owner = string.match(value, "^([^:]+):")
    if owner ~= ARGV[1] then
        return {-1, value}
    end
    -- 2. 이미 판매된 좌석 (필드 3개일 때만 SOLD)
    if string.match(value, "^[^:]+:[^:]+:SOLD$") then
        return {2, value}
    end
    -- 3. 종료된 매치는 판매 불가
    if redis.call("GET", status_key) == "CLOSED" then
        return {-2, value}
    end

    -- SET으로 덮어쓰면 선점 TTL이 사라짐
    redis.call("SET", seat_key, value .. ":SOLD")
    if sold_ttl > 0 then
        redis.call("PEXPIRE", seat_key, sold_ttl)
    end
    return {1, value}
`)

// ConfirmSale: 선점한 좌석을 판매 확정. 소유자 정보와 이미 판매된 좌석이었는지를 반환
func (r *RedisRepository) ConfirmSale(ctx context.Context, seat SeatKey, userID int64, soldTTL time.Duration) (SeatOwner, bool, error) {
	if err := seat.Validate(); err != nil {
		return SeatOwner{}, false, err
	}
	keys := []string{seatKey(seat), matchStatusKey(seat.MatchID)}
	args := []interface{}{strconv.FormatInt(userID, 10), soldTTL.Milliseconds()}

	result, err := confirmScript.Run(ctx, r.Client, keys, args...).Result()
	if err != nil {
		return SeatOwner{}, false, storeErr("confirm sale", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return SeatOwner{}, false, fmt.Errorf("confirm sale: unexpected lua script result %v", result)
	}
	code, _ := toInt64(res[0])
	value, _ := res[1].(string)

	switch code {
	case 0:
		return SeatOwner{}, false, fmt.Errorf("seat %s: %w", seat, ErrExpired)
	case -1:
		return SeatOwner{}, false, fmt.Errorf("seat %s user %d: %w", seat, userID, ErrNotOwner)
	case -2:
		return SeatOwner{}, false, fmt.Errorf("match %d: %w", seat.MatchID, ErrMatchClosed)
	case 1, 2:
		owner, _, err := decodeSeatValue(value)
		return owner, code == 2, err
	default:
		return SeatOwner{}, false, fmt.Errorf("confirm sale: unknown result code %d", code)
	}
}

// CloseMatch: 매치를 CLOSED로 표시. 이후의 선점은 ErrMatchClosed로 실패하므로
// 그 다음에 시작한 sweep은 모든 hold를 본다.
// ttl이 0이면 표시는 영구 보존되고, 양수면 그 시간 뒤에 매치가 다시 열린다.
func (r *RedisRepository) CloseMatch(ctx context.Context, matchID int64, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return storeErr("close match", r.Client.Set(ctx, matchStatusKey(matchID), "CLOSED", ttl).Err())
}

var sweepSeatScript = redis.NewScript(`
    local seat_key = KEYS[1]
    local index_key = KEYS[2]

    local value = redis.call("GET", seat_key)
    if not value then
        redis.call("SREM", index_key, seat_key)
        return ""
    end
    -- 판매된 좌석은 남김
    if string.match(value, "^[^:]+:[^:]+:SOLD$") then
        return ""
    end
    redis.call("DEL", seat_key)
    redis.call("SREM", index_key, seat_key)
    return value
`)

const sweepScanCount = 256

// SweepHeld: 매치의 HELD 좌석을 모두 해제 (SOLD는 유지). 해제할 때마다 released 호출
func (r *RedisRepository) SweepHeld(ctx context.Context, matchID int64, released func(SeatKey, SeatOwner)) (int, error) {
	indexKey := seatIndexKey(matchID)

	// 해제하면서 인덱스가 줄어들기 때문에 먼저 전부 읽어둔다
	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.Client.SScan(ctx, indexKey, cursor, "", sweepScanCount).Result()
		if err != nil {
			return 0, storeErr("scan seat index", err)
		}
		keys = append(keys, batch...)
		if cursor = next; cursor == 0 {
			break
		}
	}

	count := 0
	for _, key := range keys {
		value, err := sweepSeatScript.Run(ctx, r.Client, []string{key, indexKey}).Text()
		if err != nil {
			return count, storeErr("sweep seat", err)
		}
		if value == "" {
			continue
		}
		count++

		seat, err := ParseSeatKey(key)
		if err != nil {
			continue
		}
		owner, _, err := decodeSeatValue(value)
		if err != nil {
			continue
		}
		if released != nil {
			released(seat, owner)
		}
	}
	return count, nil
}
