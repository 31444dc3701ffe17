// Command buy is a load generator: many concurrent users join one room's
// queue, wait for admission and then race each other for seats.
package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/imroc/req/v3"
	"github.com/spf13/pflag"
)

type options struct {
	baseURL      string
	roomID       int64
	matchID      int64
	users        int
	userOffset   int64
	sections     int
	rows         int
	grade        string
	open         bool
	totalSeats   int
	pollInterval time.Duration
	maxWait      time.Duration
	seatTries    int
}

type stats struct {
	joined, alreadyQueued, admitted, timedOut atomic.Int64
	held, sold, gaveUp, failed                atomic.Int64
}

type positionResult struct {
	TicketNo       int64  `json:"ticketNo"`
	State          string `json:"state"`
	EstimatedAhead int64  `json:"estimatedAhead"`
}

func main() {
	var o options
	pflag.StringVar(&o.baseURL, "url", "http://localhost:8080", "API server base URL")
	pflag.Int64Var(&o.roomID, "room", 1, "room id")
	pflag.Int64Var(&o.matchID, "match", 1, "match id")
	pflag.IntVarP(&o.users, "users", "n", 1000, "number of concurrent users")
	pflag.Int64Var(&o.userOffset, "user-offset", 1, "first user id")
	pflag.IntVar(&o.sections, "sections", 10, "number of sections")
	pflag.IntVar(&o.rows, "rows", 50, "seats per section")
	pflag.StringVar(&o.grade, "grade", "R", "price grade to hold")
	pflag.BoolVar(&o.open, "open", true, "open the room before the run")
	pflag.IntVar(&o.totalSeats, "total-seats", 500, "venue size used when opening the room")
	pflag.DurationVar(&o.pollInterval, "poll", time.Second, "position poll interval")
	pflag.DurationVar(&o.maxWait, "max-wait", 5*time.Minute, "give up waiting for admission after this long")
	pflag.IntVar(&o.seatTries, "seat-tries", 5, "seats a user tries before giving up")
	pflag.Parse()

	client := req.C().
		SetBaseURL(o.baseURL).
		SetTimeout(10*time.Second).
		SetCommonRetryCount(3).
		SetCommonRetryBackoffInterval(100*time.Millisecond, 2*time.Second).
		AddCommonRetryCondition(func(resp *req.Response, err error) bool {
			return err != nil || resp.StatusCode == http.StatusServiceUnavailable
		})

	if o.open {
		resp, err := client.R().
			SetBodyJsonMarshal(map[string]any{"totalSeats": o.totalSeats}).
			Post(fmt.Sprintf("/rooms/%d/open", o.roomID))
		if err != nil || !resp.IsSuccessState() {
			fmt.Fprintf(os.Stderr, "open room failed: %v %v\n", err, resp)
			os.Exit(1)
		}
	}

	var st stats
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < o.users; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			runUser(client, &o, &st, uid)
		}(o.userOffset + int64(i))
	}
	wg.Wait()

	fmt.Printf("done in %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Printf("joined[%d] alreadyQueued[%d] admitted[%d] timedOut[%d]\n",
		st.joined.Load(), st.alreadyQueued.Load(), st.admitted.Load(), st.timedOut.Load())
	fmt.Printf("held[%d] sold[%d] gaveUp[%d] failed[%d]\n",
		st.held.Load(), st.sold.Load(), st.gaveUp.Load(), st.failed.Load())
}

func runUser(client *req.Client, o *options, st *stats, uid int64) {
	user := strconv.FormatInt(uid, 10)

	resp, err := client.R().
		SetHeader("X-User-Id", user).
		Post(fmt.Sprintf("/rooms/%d/queue", o.roomID))
	switch {
	case err != nil:
		st.failed.Add(1)
		return
	case resp.StatusCode == http.StatusCreated:
		st.joined.Add(1)
	case resp.StatusCode == http.StatusConflict:
		st.alreadyQueued.Add(1)
	default:
		st.failed.Add(1)
		return
	}

	if !waitForAdmission(client, o, user) {
		st.timedOut.Add(1)
		return
	}
	st.admitted.Add(1)

	for try := 0; try < o.seatTries; try++ {
		section := fmt.Sprintf("%03d", rand.Intn(o.sections)+1)
		row := strconv.Itoa(rand.Intn(o.rows) + 1)
		seatPath := fmt.Sprintf("/matches/%d/seats/%s/%s", o.matchID, section, row)

		resp, err := client.R().
			SetHeader("X-User-Id", user).
			SetBodyJsonMarshal(map[string]any{"grade": o.grade}).
			Post(seatPath + "/hold")
		if err != nil {
			st.failed.Add(1)
			return
		}
		// 재시도한 선점은 내 좌석이어도 409가 올 수 있음
		if resp.StatusCode == http.StatusConflict && !ownsSeat(client, seatPath, uid) {
			continue
		}
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusConflict {
			st.failed.Add(1)
			return
		}
		st.held.Add(1)

		resp, err = client.R().
			SetHeader("X-User-Id", user).
			Post(seatPath + "/confirm")
		if err != nil || !resp.IsSuccessState() {
			st.failed.Add(1)
			return
		}
		st.sold.Add(1)
		return
	}
	st.gaveUp.Add(1)
}

func ownsSeat(client *req.Client, seatPath string, uid int64) bool {
	var owner struct {
		UserID int64 `json:"userId"`
	}
	resp, err := client.R().SetSuccessResult(&owner).Get(seatPath + "/owner")
	return err == nil && resp.IsSuccessState() && owner.UserID == uid
}

func waitForAdmission(client *req.Client, o *options, user string) bool {
	deadline := time.Now().Add(o.maxWait)
	for time.Now().Before(deadline) {
		var pos positionResult
		resp, err := client.R().
			SetHeader("X-User-Id", user).
			SetSuccessResult(&pos).
			Get(fmt.Sprintf("/rooms/%d/queue/position", o.roomID))
		if err == nil && resp.IsSuccessState() && pos.State == "ACTIVE" {
			return true
		}
		if err == nil && resp.StatusCode == http.StatusNotFound {
			return false
		}
		time.Sleep(o.pollInterval)
	}
	return false
}
