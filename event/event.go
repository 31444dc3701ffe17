// Package event defines the lifecycle events published to the bus.
package event

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

type Type string

const (
	UserJoined          Type = "USER_JOINED"
	UserLeft            Type = "USER_LEFT"
	UserAdmitted        Type = "USER_ADMITTED"
	HostChanged         Type = "HOST_CHANGED"
	MatchSettingChanged Type = "MATCH_SETTING_CHANGED"
	RoomSettingUpdated  Type = "ROOM_SETTING_UPDATED"
	RoomPlayingStarted  Type = "ROOM_PLAYING_STARTED"
	RoomPlayingEnded    Type = "ROOM_PLAYING_ENDED"
	MatchEnded          Type = "MATCH_ENDED"
	SeatHeld            Type = "SEAT_HELD"
	SeatSold            Type = "SEAT_SOLD"
	SeatReleased        Type = "SEAT_RELEASED"
)

// Topics. Room events are keyed by room id, seat events by match id.
const (
	TopicRoomEvents = "room-events"
	TopicSeatEvents = "seat-events"
	TopicSeatDLQ    = "seat-events-dlq"
)

// Release reasons carried by SEAT_RELEASED.
const (
	ReasonUser     = "user"
	ReasonExpired  = "expired"
	ReasonMatchEnd = "match_end"
)

type Envelope struct {
	EventType Type            `json:"eventType"`
	RoomID    int64           `json:"roomId,omitempty"`
	MatchID   int64           `json:"matchId,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Topic reports where the event is published.
func (e *Envelope) Topic() string {
	switch e.EventType {
	case SeatHeld, SeatSold, SeatReleased:
		return TopicSeatEvents
	default:
		return TopicRoomEvents
	}
}

// Key is the partition key: match id for seat events, room id otherwise.
func (e *Envelope) Key() []byte {
	if e.Topic() == TopicSeatEvents {
		return []byte(strconv.FormatInt(e.MatchID, 10))
	}
	return []byte(strconv.FormatInt(e.RoomID, 10))
}

func (e *Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s: empty payload", e.EventType)
	}
	return json.Unmarshal(e.Payload, v)
}

func New(t Type, roomID, matchID int64, payload any) (*Envelope, error) {
	e := &Envelope{
		EventType: t,
		RoomID:    roomID,
		MatchID:   matchID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		e.Payload = raw
	}
	return e, nil
}

func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if e.EventType == "" {
		return nil, fmt.Errorf("decode event: missing eventType")
	}
	return &e, nil
}

type UserJoinedPayload struct {
	UserID   int64 `json:"userId"`
	TicketNo int64 `json:"ticketNo"`
}

type UserLeftPayload struct {
	UserID    int64  `json:"userId"`
	PrevState string `json:"prevState"`
}

type UserAdmittedPayload struct {
	UserID   int64 `json:"userId"`
	TicketNo int64 `json:"ticketNo"`
}

type HostChangedPayload struct {
	PreviousHostID int64 `json:"previousHostId"`
	NewHostID      int64 `json:"newHostId"`
}

type MatchSettingChangedPayload struct {
	Settings map[string]string `json:"settings"`
}

type RoomSettingUpdatedPayload struct {
	RoomName     string `json:"roomName,omitempty"`
	Difficulty   string `json:"difficulty,omitempty"`
	MaxUserCount int64  `json:"maxUserCount,omitempty"`
	StartTime    int64  `json:"startTime,omitempty"`
}

type RoomPlayingPayload struct {
	State string `json:"state"`
}

type MatchEndedPayload struct {
	ReleasedSeats int `json:"releasedSeats"`
	LeftUsers     int `json:"leftUsers"`
}

type SeatPayload struct {
	SectionID string `json:"sectionId"`
	RowNumber string `json:"rowNumber"`
	UserID    int64  `json:"userId"`
	Grade     string `json:"grade"`

	// SEAT_RELEASED only.
	Reason  string `json:"reason,omitempty"`
	WasSold bool   `json:"wasSold,omitempty"`
}
