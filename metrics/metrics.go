package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 1. 대기열 진입 요청 (결과별: ok, already_queued, room_not_found, match_closed, error)
	EnqueueRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_enqueue_requests_total",
		Help: "Total number of enqueue requests by result",
	}, []string{"result"})

	AdmittedUsers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_admitted_users_total",
		Help: "Total number of users promoted from WAITING to ACTIVE",
	})

	LeftUsers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_left_users_total",
		Help: "Total number of users that left the queue by previous state",
	}, []string{"prev"})

	// 2. 방별 현재 입장 인원 (Gauge: 입장 처리 후마다 갱신)
	RoomOccupancy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_room_occupancy",
		Help: "Current number of ACTIVE users in a room",
	}, []string{"room"})

	SeatReserveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_reserve_requests_total",
		Help: "Total number of seat reservation attempts by result",
	}, []string{"result"})

	SeatReleaseRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_release_requests_total",
		Help: "Total number of seat releases by result",
	}, []string{"result"})

	SeatConfirmRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "seat_confirm_requests_total",
		Help: "Total number of sale confirmations by result",
	}, []string{"result"})

	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "store_retries_total",
		Help: "Total number of retried store calls by operation",
	}, []string{"op"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of lifecycle events handed to the bus",
	}, []string{"topic", "result"})

	// 워커가 DB에 저장한 구매 건수
	MySQLSaveSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mysql_save_success_total",
		Help: "The total number of successful MySQL saves",
	})
)
