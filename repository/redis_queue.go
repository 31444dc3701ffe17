package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

var initRoomScript = redis.NewScript(`
    local meta_key = KEYS[1]
    local total_key = KEYS[2]
    local target = ARGV[1]

    local state = redis.call("HGET", meta_key, "state")
    if state then
        if state == "PENDING" and target == "OPEN" then
            redis.call("HSET", meta_key, "state", "OPEN")
            return {"OPEN", 0}
        end
        return {state, 0}
    end

    redis.call("HSET", meta_key,
        "state", target,
        "capacity", ARGV[2],
        "hallSize", ARGV[3],
        "totalSeats", ARGV[4])
    redis.call("SET", total_key, ARGV[2])
    return {target, 1}
`)

// InitRoom: 방이 없으면 주어진 상태로 생성. PENDING 방에 OPEN이 오면 열기만 하고
// 카운터는 절대 초기화하지 않는다.
func (r *RedisRepository) InitRoom(ctx context.Context, room Room, state RoomState) (RoomState, bool, error) {
	if room.Capacity <= 0 {
		return "", false, fmt.Errorf("%w: %d", ErrInvalidCapacity, room.Capacity)
	}

	keys := []string{metaKey(room.ID), totalKey(room.ID)}
	args := []interface{}{string(state), room.Capacity, string(room.HallSize), room.TotalSeats}

	result, err := initRoomScript.Run(ctx, r.Client, keys, args...).Result()
	if err != nil {
		return "", false, storeErr("init room", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return "", false, fmt.Errorf("init room: unexpected lua script result %v", result)
	}
	current, _ := res[0].(string)
	created, _ := toInt64(res[1])

	if err := r.Client.SAdd(ctx, roomsKey, room.ID).Err(); err != nil {
		return RoomState(current), created == 1, storeErr("index room", err)
	}
	return RoomState(current), created == 1, nil
}

var setRoomStateScript = redis.NewScript(`
    local meta_key = KEYS[1]
    local state = redis.call("HGET", meta_key, "state")
    if not state then
        return {"", 0}
    end
    if #ARGV == 1 then
        redis.call("HSET", meta_key, "state", ARGV[1])
        return {state, 1}
    end
    for i = 2, #ARGV do
        if state == ARGV[i] then
            redis.call("HSET", meta_key, "state", ARGV[1])
            return {state, 1}
        end
    end
    return {state, 0}
`)

// SetRoomState: 현재 상태가 from 중 하나일 때만 to로 전환 (from이 비어 있으면 무조건).
// 호출 전 상태를 반환하고, 방이 없으면 ErrRoomNotFound.
func (r *RedisRepository) SetRoomState(ctx context.Context, roomID int64, to RoomState, from ...RoomState) (RoomState, error) {
	args := []interface{}{string(to)}
	for _, f := range from {
		args = append(args, string(f))
	}

	result, err := setRoomStateScript.Run(ctx, r.Client, []string{metaKey(roomID)}, args...).Result()
	if err != nil {
		return "", storeErr("set room state", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return "", fmt.Errorf("set room state: unexpected lua script result %v", result)
	}
	prev, _ := res[0].(string)
	if prev == "" {
		return "", fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	changed, _ := toInt64(res[1])
	if changed == 0 {
		return RoomState(prev), fmt.Errorf("room %d in state %s, want one of %v: %w", roomID, prev, from, ErrInvalidTransition)
	}
	return RoomState(prev), nil
}

// ErrInvalidTransition is returned by SetRoomState when the guard fails.
var ErrInvalidTransition = errors.New("invalid room state transition")

var setCapacityScript = redis.NewScript(`
    local meta_key = KEYS[1]
    local total_key = KEYS[2]

    local old = redis.call("HGET", meta_key, "capacity")
    if not old then
        return {-1, 0}
    end
    local delta = tonumber(ARGV[1]) - tonumber(old)
    redis.call("HSET", meta_key, "capacity", ARGV[1])
    local total = redis.call("INCRBY", total_key, delta)
    return {tonumber(old), total}
`)

// SetCapacity: 변경분만큼 total을 조정해서 이탈로 생긴 빈자리를 유지
func (r *RedisRepository) SetCapacity(ctx context.Context, roomID int64, capacity int64) (int64, int64, error) {
	if capacity <= 0 {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}

	keys := []string{metaKey(roomID), totalKey(roomID)}
	result, err := setCapacityScript.Run(ctx, r.Client, keys, capacity).Result()
	if err != nil {
		return 0, 0, storeErr("set capacity", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return 0, 0, fmt.Errorf("set capacity: unexpected lua script result %v", result)
	}
	old, _ := toInt64(res[0])
	total, _ := toInt64(res[1])
	if old < 0 {
		return 0, 0, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}
	return old, total, nil
}

func (r *RedisRepository) GetRoom(ctx context.Context, roomID int64) (*Room, error) {
	pipe := r.Client.Pipeline()
	metaCmd := pipe.HGetAll(ctx, metaKey(roomID))
	totalCmd := pipe.Get(ctx, totalKey(roomID))
	admittedCmd := pipe.Get(ctx, admittedKey(roomID))
	offsetCmd := pipe.Get(ctx, offsetKey(roomID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeErr("get room", err)
	}

	meta := metaCmd.Val()
	if len(meta) == 0 {
		return nil, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}

	room := &Room{
		ID:       roomID,
		State:    RoomState(meta["state"]),
		HallSize: HallSize(meta["hallSize"]),
	}
	room.TotalSeats, _ = strconv.Atoi(meta["totalSeats"])
	room.Capacity, _ = strconv.ParseInt(meta["capacity"], 10, 64)
	room.Total, _ = totalCmd.Int64()
	room.Admitted, _ = admittedCmd.Int64()
	room.DroppedAhead, _ = offsetCmd.Int64()
	return room, nil
}

func (r *RedisRepository) ListRooms(ctx context.Context) ([]int64, error) {
	members, err := r.Client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return nil, storeErr("list rooms", err)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ForgetRoom: promoter 목록에서만 제거 (방 키는 남김)
func (r *RedisRepository) ForgetRoom(ctx context.Context, roomID int64) error {
	return storeErr("forget room", r.Client.SRem(ctx, roomsKey, roomID).Err())
}

var enqueueScript = redis.NewScript(`
    local meta_key = KEYS[1]
    local waiting_key = KEYS[2]
    local user_key = KEYS[3]
    local seq_key = KEYS[4]
    local user_id = ARGV[1]

    local room_state = redis.call("HGET", meta_key, "state")
    if not room_state then
        return {-2, 0}
    end
    if room_state == "ENDED" then
        return {-3, 0}
    end

    -- 1. 이미 대기/입장 중이면 기존 번호표 유지
    local state = redis.call("HGET", user_key, "state")
    if state and state ~= "LEFT" then
        return {-1, tonumber(redis.call("HGET", user_key, "ticket"))}
    end

    -- 2. 방 단위 시퀀스로 번호표 발급
    local ticket = redis.call("INCR", seq_key)

    -- 3. 번호표 순서로 대기열 진입
    redis.call("ZADD", waiting_key, ticket, user_id)
    redis.call("HSET", user_key, "state", "WAITING", "ticket", ticket)
    return {1, ticket}
`)

// Enqueue: 다음 번호표를 발급하고 WAITING으로 기록.
// 이미 줄에 있는 유저는 기존 번호표와 함께 ErrAlreadyQueued, LEFT 유저는 새 번호표를 받는다.
func (r *RedisRepository) Enqueue(ctx context.Context, roomID, userID int64) (int64, error) {
	keys := []string{metaKey(roomID), waitingKey(roomID), userKey(roomID, userID), seqKey(roomID)}

	result, err := enqueueScript.Run(ctx, r.Client, keys, userID).Result()
	if err != nil {
		return 0, storeErr("enqueue", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) < 2 {
		return 0, fmt.Errorf("enqueue: unexpected lua script result %v", result)
	}
	code, _ := toInt64(res[0])
	ticket, _ := toInt64(res[1])

	switch code {
	case 1:
		return ticket, nil
	case -1:
		return ticket, fmt.Errorf("room %d user %d ticket %d: %w", roomID, userID, ticket, ErrAlreadyQueued)
	case -2:
		return 0, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	case -3:
		return 0, fmt.Errorf("room %d: %w", roomID, ErrMatchClosed)
	default:
		return 0, fmt.Errorf("enqueue: unknown result code %d", code)
	}
}

var leaveScript = redis.NewScript(`
    local waiting_key = KEYS[1]
    local active_key = KEYS[2]
    local user_key = KEYS[3]
    local offset_key = KEYS[4]
    local total_key = KEYS[5]
    local user_id = ARGV[1]

    local state = redis.call("HGET", user_key, "state")
    if not state then
        return ""
    end
    if state == "LEFT" then
        return "LEFT"
    end

    redis.call("HSET", user_key, "state", "LEFT")
    redis.call("ZREM", waiting_key, user_id)
    redis.call("SREM", active_key, user_id)
    redis.call("INCR", offset_key)

    -- ACTIVE 유저가 나가면 다음 대기자를 위한 자리가 하나 생김
    if state == "ACTIVE" then
        redis.call("INCR", total_key)
    end
    return state
`)

// Leave: 유저를 LEFT로 옮기고 이전 상태를 반환.
// 줄에 없던 유저는 "", 이미 나간 유저는 StateLeft (둘 다 아무 변화 없음)
func (r *RedisRepository) Leave(ctx context.Context, roomID, userID int64) (QueueState, error) {
	keys := []string{
		waitingKey(roomID),
		activeKey(roomID),
		userKey(roomID, userID),
		offsetKey(roomID),
		totalKey(roomID),
	}

	prev, err := leaveScript.Run(ctx, r.Client, keys, userID).Text()
	if err != nil {
		return "", storeErr("leave", err)
	}
	return QueueState(prev), nil
}

var positionScript = redis.NewScript(`
    local user_key = KEYS[1]
    local state = redis.call("HGET", user_key, "state")
    if not state then
        return {""}
    end
    return {
        state,
        tonumber(redis.call("HGET", user_key, "ticket")),
        tonumber(redis.call("GET", KEYS[2]) or "0"),
        tonumber(redis.call("GET", KEYS[3]) or "0"),
        redis.call("ZCARD", KEYS[4])
    }
`)

// Position: 번호표와 방 카운터를 한 번에 읽어서 앞사람 수를 추정
// max(0, ticketNo - droppedAhead - admitted)
func (r *RedisRepository) Position(ctx context.Context, roomID, userID int64) (*Position, error) {
	keys := []string{userKey(roomID, userID), offsetKey(roomID), admittedKey(roomID), waitingKey(roomID)}

	result, err := positionScript.Run(ctx, r.Client, keys).Result()
	if err != nil {
		return nil, storeErr("position", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) == 0 {
		return nil, fmt.Errorf("position: unexpected lua script result %v", result)
	}
	state, _ := res[0].(string)
	if state == "" || QueueState(state) == StateLeft {
		return nil, fmt.Errorf("room %d user %d: %w", roomID, userID, ErrNotQueued)
	}
	if len(res) < 5 {
		return nil, fmt.Errorf("position: unexpected lua script result %v", result)
	}

	pos := &Position{State: QueueState(state)}
	pos.TicketNo, _ = toInt64(res[1])
	dropped, _ := toInt64(res[2])
	admitted, _ := toInt64(res[3])
	pos.WaitingTotal, _ = toInt64(res[4])

	if pos.State == StateWaiting {
		pos.EstimatedAhead = max(0, pos.TicketNo-dropped-admitted)
	}
	return pos, nil
}

var admitScript = redis.NewScript(`
    local meta_key = KEYS[1]
    local waiting_key = KEYS[2]
    local active_key = KEYS[3]
    local total_key = KEYS[4]
    local admitted_key = KEYS[5]
    local user_prefix = ARGV[1]
    local batch = tonumber(ARGV[2])

    local state = redis.call("HGET", meta_key, "state")
    if state ~= "OPEN" and state ~= "PLAYING" then
        return {}
    end

    local total = tonumber(redis.call("GET", total_key) or "0")
    local admitted = tonumber(redis.call("GET", admitted_key) or "0")
    local out = {}

    -- 1. 빈자리가 있는 동안 가장 작은 번호표부터 꺼냄
    -- 2. 아직 WAITING인 유저만 ACTIVE로 전환
    while admitted < total and #out < batch * 2 do
        local head = redis.call("ZRANGE", waiting_key, 0, 0, "WITHSCORES")
        if #head == 0 then
            break
        end
        local user_id = head[1]
        local user_key = user_prefix .. user_id
        redis.call("ZREM", waiting_key, user_id)

        if redis.call("HGET", user_key, "state") == "WAITING" then
            redis.call("HSET", user_key, "state", "ACTIVE")
            redis.call("SADD", active_key, user_id)
            admitted = redis.call("INCR", admitted_key)
            out[#out + 1] = tonumber(user_id)
            out[#out + 1] = tonumber(head[2])
        end
    end
    return out
`)

// AdmitBatch: 빈자리가 있는 동안 최대 batch명을 번호표 순서대로 입장시킴
func (r *RedisRepository) AdmitBatch(ctx context.Context, roomID int64, batch int) ([]Admission, error) {
	keys := []string{
		metaKey(roomID),
		waitingKey(roomID),
		activeKey(roomID),
		totalKey(roomID),
		admittedKey(roomID),
	}
	args := []interface{}{userKeyPrefix(roomID), batch}

	result, err := admitScript.Run(ctx, r.Client, keys, args...).Result()
	if err != nil {
		return nil, storeErr("admit", err)
	}
	res, err := toSlice(result)
	if err != nil {
		return nil, err
	}

	admitted := make([]Admission, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		userID, err := toInt64(res[i])
		if err != nil {
			return admitted, err
		}
		ticket, err := toInt64(res[i+1])
		if err != nil {
			return admitted, err
		}
		admitted = append(admitted, Admission{UserID: userID, TicketNo: ticket})
	}
	return admitted, nil
}

var closeQueueScript = redis.NewScript(`
    local waiting_key = KEYS[1]
    local active_key = KEYS[2]
    local offset_key = KEYS[3]
    local total_key = KEYS[4]
    local user_prefix = ARGV[1]
    local batch = tonumber(ARGV[2])
    local out = {0}

    -- 1. ACTIVE 유저부터 LEFT로 이동 (빈 자리만큼 total 증가)
    local active = redis.call("SPOP", active_key, batch)
    for _, user_id in ipairs(active) do
        local user_key = user_prefix .. user_id
        if redis.call("HGET", user_key, "state") == "ACTIVE" then
            redis.call("HSET", user_key, "state", "LEFT")
            redis.call("INCR", offset_key)
            redis.call("INCR", total_key)
            out[#out + 1] = tonumber(user_id)
        end
    end
    local processed = #active

    -- 2. 남은 배치만큼 WAITING 유저를 LEFT로 이동
    if processed < batch then
        local waiting = redis.call("ZPOPMIN", waiting_key, batch - processed)
        for i = 1, #waiting, 2 do
            local user_key = user_prefix .. waiting[i]
            if redis.call("HGET", user_key, "state") == "WAITING" then
                redis.call("HSET", user_key, "state", "LEFT")
                redis.call("INCR", offset_key)
                out[#out + 1] = tonumber(waiting[i])
            end
        end
        processed = processed + #waiting / 2
    end

    out[1] = processed
    return out
`)

// CloseQueue: 남은 ACTIVE, WAITING 유저를 batch명씩 LEFT로 이동.
// Leave와 같은 방식으로 카운터를 올리므로 다 비우면 점유 인원은 0이 된다.
// processed < batch 가 될 때까지 반복 호출
func (r *RedisRepository) CloseQueue(ctx context.Context, roomID int64, batch int) (int, []int64, error) {
	keys := []string{waitingKey(roomID), activeKey(roomID), offsetKey(roomID), totalKey(roomID)}
	args := []interface{}{userKeyPrefix(roomID), batch}

	result, err := closeQueueScript.Run(ctx, r.Client, keys, args...).Result()
	if err != nil {
		return 0, nil, storeErr("close queue", err)
	}
	res, err := toSlice(result)
	if err != nil || len(res) == 0 {
		return 0, nil, fmt.Errorf("close queue: unexpected lua script result %v", result)
	}
	processed, _ := toInt64(res[0])

	left := make([]int64, 0, len(res)-1)
	for _, v := range res[1:] {
		id, err := toInt64(v)
		if err != nil {
			return int(processed), left, err
		}
		left = append(left, id)
	}
	return int(processed), left, nil
}
