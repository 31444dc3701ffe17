package repository

import (
	"fmt"
	"strconv"
	"strings"
)

// Every key of a room (or match) carries the id as a hash tag so the Lua
// scripts touching several of them stay within one cluster slot.

func roomTag(roomID int64) string {
	return "queue:{" + strconv.FormatInt(roomID, 10) + "}"
}

func metaKey(roomID int64) string     { return roomTag(roomID) + ":meta" }
func waitingKey(roomID int64) string  { return roomTag(roomID) + ":waiting" }
func activeKey(roomID int64) string   { return roomTag(roomID) + ":active" }
func seqKey(roomID int64) string      { return roomTag(roomID) + ":seq" }
func offsetKey(roomID int64) string   { return roomTag(roomID) + ":offset" }
func totalKey(roomID int64) string    { return roomTag(roomID) + ":total" }
func admittedKey(roomID int64) string { return roomTag(roomID) + ":admitted" }

func userKeyPrefix(roomID int64) string { return roomTag(roomID) + ":user:" }

func userKey(roomID, userID int64) string {
	return userKeyPrefix(roomID) + strconv.FormatInt(userID, 10)
}

// promoter가 도는 방 목록
const roomsKey = "queue:rooms"

func matchTag(matchID int64) string {
	return "seat:{" + strconv.FormatInt(matchID, 10) + "}"
}

func seatKey(k SeatKey) string {
	return matchTag(k.MatchID) + ":" + k.SectionID + ":" + k.RowNumber
}

func seatIndexKey(matchID int64) string   { return matchTag(matchID) + ":index" }
func matchStatusKey(matchID int64) string { return matchTag(matchID) + ":status" }

// ParseSeatKey is the inverse of seatKey. Index and status keys of a match
// are rejected.
func ParseSeatKey(key string) (SeatKey, error) {
	rest, ok := strings.CutPrefix(key, "seat:{")
	if !ok {
		return SeatKey{}, fmt.Errorf("not a seat key %q", key)
	}
	idStr, rest, ok := strings.Cut(rest, "}:")
	if !ok {
		return SeatKey{}, fmt.Errorf("not a seat key %q", key)
	}
	matchID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return SeatKey{}, fmt.Errorf("bad match id in %q: %w", key, err)
	}
	section, row, ok := strings.Cut(rest, ":")
	if !ok || section == "" || row == "" {
		return SeatKey{}, fmt.Errorf("not a seat key %q", key)
	}
	return SeatKey{MatchID: matchID, SectionID: section, RowNumber: row}, nil
}
