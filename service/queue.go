package service

import (
	"context"
	"errors"
	"fmt"

	"ticket-queue/config"
	"ticket-queue/event"
	"ticket-queue/infra"
	"ticket-queue/metrics"
	"ticket-queue/repository"

	"go.uber.org/zap"
)

// RoomSettings is the mutable part of a room announced by
// ROOM_SETTING_UPDATED. A positive MaxUserCount also changes the
// admission capacity.
type RoomSettings struct {
	RoomName     string
	Difficulty   string
	MaxUserCount int64
	StartTime    int64
}

type QueueService struct {
	repo      repository.QueueRepository
	admission *AdmissionController
	events    *Emitter
	retrier   *Retrier
	config    *config.Config

	logger *zap.SugaredLogger
}

func ProvideQueueService(
	repo repository.QueueRepository,
	admission *AdmissionController,
	events *Emitter,
	retrier *Retrier,
	cfg *config.Config,
	loggerFactory *infra.LoggerFactory,
) *QueueService {
	return &QueueService{
		repo:      repo,
		admission: admission,
		events:    events,
		retrier:   retrier,
		config:    cfg,
		logger:    loggerFactory.Create("Queue").Sugar(),
	}
}

// CapacityFor: 좌석 수로 홀 규모와 기본 입장 인원을 결정
func (s *QueueService) CapacityFor(totalSeats int) (repository.HallSize, int64) {
	hall := repository.HallSizeOf(totalSeats)
	switch hall {
	case repository.HallSmall:
		return hall, int64(s.config.CapacitySmall)
	case repository.HallMedium:
		return hall, int64(s.config.CapacityMedium)
	default:
		return hall, int64(s.config.CapacityLarge)
	}
}

// CreateRoom: PENDING 방 등록 (열린 뒤부터 대기열 진입 가능)
func (s *QueueService) CreateRoom(ctx context.Context, roomID int64, totalSeats int, capacity int64) (*repository.Room, error) {
	return s.initRoom(ctx, roomID, totalSeats, capacity, repository.RoomPending)
}

// OpenRoom: 방을 OPEN으로 생성하거나 PENDING 방을 연다. 기존 카운터는 유지
func (s *QueueService) OpenRoom(ctx context.Context, roomID int64, totalSeats int, capacity int64) (*repository.Room, error) {
	room, err := s.initRoom(ctx, roomID, totalSeats, capacity, repository.RoomOpen)
	if err != nil {
		return nil, err
	}
	if room.State.Admitting() {
		if _, err := s.admission.Admit(ctx, roomID); err != nil {
			s.logger.Warnf("admission after open failed room[%v] %v", roomID, err)
		}
		// 입장 후의 점유 인원을 돌려주기 위해 다시 읽는다.
		if fresh, err := s.Room(ctx, roomID); err == nil {
			return fresh, nil
		}
	}
	return room, nil
}

func (s *QueueService) initRoom(ctx context.Context, roomID int64, totalSeats int, capacity int64, state repository.RoomState) (*repository.Room, error) {
	hall, tierCapacity := s.CapacityFor(totalSeats)
	if capacity == 0 {
		capacity = tierCapacity
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("room %d: %w: %d", roomID, repository.ErrInvalidCapacity, capacity)
	}

	room := repository.Room{
		ID:         roomID,
		HallSize:   hall,
		TotalSeats: totalSeats,
		Capacity:   capacity,
	}
	var current repository.RoomState
	var created bool
	err := s.retrier.Do(ctx, "init room", func(ctx context.Context) error {
		var err error
		current, created, err = s.repo.InitRoom(ctx, room, state)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("room ready room[%v] state[%v] created[%v] hall[%v] capacity[%v]", roomID, current, created, hall, capacity)

	return s.Room(ctx, roomID)
}

// StartPlaying: OPEN -> PLAYING
func (s *QueueService) StartPlaying(ctx context.Context, roomID int64) error {
	err := s.retrier.Do(ctx, "start playing", func(ctx context.Context) error {
		prev, err := s.repo.SetRoomState(ctx, roomID, repository.RoomPlaying, repository.RoomOpen, repository.RoomPlaying)
		if err == nil && prev == repository.RoomPlaying {
			return errAlreadyPlaying
		}
		return err
	})
	if errors.Is(err, errAlreadyPlaying) {
		return nil
	}
	if err != nil {
		return err
	}

	_ = s.events.Emit(ctx, event.RoomPlayingStarted, roomID, 0, event.RoomPlayingPayload{State: string(repository.RoomPlaying)})
	if _, err := s.admission.Admit(ctx, roomID); err != nil {
		s.logger.Warnf("admission after start failed room[%v] %v", roomID, err)
	}
	return nil
}

var errAlreadyPlaying = errors.New("already playing")

// SetCapacity: 입장 인원 변경 후 늘어난 자리만큼 바로 입장 처리
func (s *QueueService) SetCapacity(ctx context.Context, roomID int64, capacity int64) (*repository.Room, error) {
	var old, total int64
	err := s.retrier.Do(ctx, "set capacity", func(ctx context.Context) error {
		var err error
		old, total, err = s.repo.SetCapacity(ctx, roomID, capacity)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Infof("capacity changed room[%v] old[%v] new[%v] total[%v]", roomID, old, capacity, total)

	if _, err := s.admission.Admit(ctx, roomID); err != nil {
		s.logger.Warnf("admission after capacity change failed room[%v] %v", roomID, err)
	}
	return s.Room(ctx, roomID)
}

func (s *QueueService) UpdateRoomSettings(ctx context.Context, roomID int64, settings RoomSettings) error {
	if settings.MaxUserCount > 0 {
		if _, err := s.SetCapacity(ctx, roomID, settings.MaxUserCount); err != nil {
			return err
		}
	} else if _, err := s.Room(ctx, roomID); err != nil {
		return err
	}

	_ = s.events.Emit(ctx, event.RoomSettingUpdated, roomID, 0, event.RoomSettingUpdatedPayload{
		RoomName:     settings.RoomName,
		Difficulty:   settings.Difficulty,
		MaxUserCount: settings.MaxUserCount,
		StartTime:    settings.StartTime,
	})
	return nil
}

func (s *QueueService) ChangeHost(ctx context.Context, roomID, previousHostID, newHostID int64) error {
	if _, err := s.Room(ctx, roomID); err != nil {
		return err
	}
	_ = s.events.Emit(ctx, event.HostChanged, roomID, 0, event.HostChangedPayload{
		PreviousHostID: previousHostID,
		NewHostID:      newHostID,
	})
	return nil
}

func (s *QueueService) ChangeMatchSetting(ctx context.Context, roomID, matchID int64, settings map[string]string) error {
	if _, err := s.Room(ctx, roomID); err != nil {
		return err
	}
	_ = s.events.Emit(ctx, event.MatchSettingChanged, roomID, matchID, event.MatchSettingChangedPayload{Settings: settings})
	return nil
}

func (s *QueueService) Room(ctx context.Context, roomID int64) (*repository.Room, error) {
	var room *repository.Room
	err := s.retrier.Do(ctx, "get room", func(ctx context.Context) error {
		var err error
		room, err = s.repo.GetRoom(ctx, roomID)
		return err
	})
	return room, err
}

// Enqueue: 번호표 발급.
// 응답이 유실된 이전 시도가 이미 넣었다면 재시도는 그 번호표로 성공 처리하고,
// 호출 전부터 줄에 있던 유저는 기존 번호표와 ErrAlreadyQueued를 받는다.
func (s *QueueService) Enqueue(ctx context.Context, roomID, userID int64) (int64, error) {
	var ticket int64
	attempts := 0
	err := s.retrier.Do(ctx, "enqueue", func(ctx context.Context) error {
		attempts++
		t, err := s.repo.Enqueue(ctx, roomID, userID)
		ticket = t
		if attempts > 1 && errors.Is(err, repository.ErrAlreadyQueued) {
			return nil
		}
		return err
	})

	switch {
	case err == nil:
		metrics.EnqueueRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, repository.ErrAlreadyQueued):
		metrics.EnqueueRequests.WithLabelValues("already_queued").Inc()
		return ticket, err
	case errors.Is(err, repository.ErrRoomNotFound):
		metrics.EnqueueRequests.WithLabelValues("room_not_found").Inc()
		return 0, err
	case errors.Is(err, repository.ErrMatchClosed):
		metrics.EnqueueRequests.WithLabelValues("match_closed").Inc()
		return 0, err
	default:
		metrics.EnqueueRequests.WithLabelValues("error").Inc()
		s.logger.Errorf("enqueue failed room[%v] user[%v] %v", roomID, userID, err)
		return 0, err
	}

	s.logger.Debugf("enqueued room[%v] user[%v] ticket[%v]", roomID, userID, ticket)
	_ = s.events.Emit(ctx, event.UserJoined, roomID, 0, event.UserJoinedPayload{UserID: userID, TicketNo: ticket})

	if _, err := s.admission.Admit(ctx, roomID); err != nil {
		s.logger.Warnf("admission after enqueue failed room[%v] %v", roomID, err)
	}
	return ticket, nil
}

// Leave: LEFT로 이동하고 이전 상태를 반환. 줄에 없거나 이미 나간 유저는 "" 또는 LEFT
func (s *QueueService) Leave(ctx context.Context, roomID, userID int64) (repository.QueueState, error) {
	var prev repository.QueueState
	err := s.retrier.Do(ctx, "leave", func(ctx context.Context) error {
		var err error
		prev, err = s.repo.Leave(ctx, roomID, userID)
		return err
	})
	if err != nil {
		s.logger.Errorf("leave failed room[%v] user[%v] %v", roomID, userID, err)
		return "", err
	}
	if prev != repository.StateWaiting && prev != repository.StateActive {
		return prev, nil
	}

	metrics.LeftUsers.WithLabelValues(string(prev)).Inc()
	s.logger.Debugf("left room[%v] user[%v] prev[%v]", roomID, userID, prev)
	_ = s.events.Emit(ctx, event.UserLeft, roomID, 0, event.UserLeftPayload{UserID: userID, PrevState: string(prev)})

	if _, err := s.admission.Admit(ctx, roomID); err != nil {
		s.logger.Warnf("admission after leave failed room[%v] %v", roomID, err)
	}
	return prev, nil
}

func (s *QueueService) Position(ctx context.Context, roomID, userID int64) (*repository.Position, error) {
	var pos *repository.Position
	err := s.retrier.Do(ctx, "position", func(ctx context.Context) error {
		var err error
		pos, err = s.repo.Position(ctx, roomID, userID)
		return err
	})
	return pos, err
}
