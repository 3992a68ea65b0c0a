package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"offersync/internal/state"
)

// Feed multiplexes offer-row change events from the realtime websocket
// endpoint. Each subscription runs its own connection with a reconnect
// loop; change payloads are discarded because subscribers re-fetch.
type Feed struct {
	Endpoint string

	connectRetry time.Duration
	readRetry    time.Duration
}

func New(endpoint string) *Feed {
	return &Feed{
		Endpoint:     endpoint,
		connectRetry: 3 * time.Second,
		readRetry:    2 * time.Second,
	}
}

type channel struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (c *channel) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// Subscribe opens a push channel for rows where <side>_id equals actorID.
// The returned subscription stops the reconnect loop when closed.
func (f *Feed) Subscribe(side, actorID string, onChange func()) (state.Subscription, error) {
	if f.Endpoint == "" {
		return nil, errors.New("realtime endpoint is empty")
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := &channel{cancel: cancel, done: make(chan struct{})}
	go f.run(ctx, side, actorID, onChange, ch.done)
	return ch, nil
}

func (f *Feed) run(ctx context.Context, side, actorID string, onChange func(), done chan struct{}) {
	defer close(done)
	filter := side + "_id=eq." + actorID

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		dialer := websocket.Dialer{}
		conn, _, err := dialer.DialContext(ctx, f.Endpoint, nil)
		if err != nil {
			log.Printf("realtime connect failed: %v", err)
			if !sleepCtx(ctx, f.connectRetry) {
				return
			}
			continue
		}
		log.Printf("realtime connected %s filter=%s", f.Endpoint, filter)

		sub := map[string]any{
			"action": "subscribe",
			"topic":  "offers",
			"event":  "*",
			"filter": filter,
		}
		if err := conn.WriteJSON(sub); err != nil {
			log.Printf("realtime subscribe failed: %v", err)
			_ = conn.Close()
			if !sleepCtx(ctx, f.connectRetry) {
				return
			}
			continue
		}

		// A blocking read is only interruptible by closing the connection.
		// The watcher is scoped to this connection; readDone retires it on a
		// normal disconnect so reconnects never stack goroutines.
		readDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-readDone:
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				close(readDone)
				if ctx.Err() != nil {
					return
				}
				log.Printf("realtime read failed: %v", err)
				_ = conn.Close()
				break
			}
			fire, err := parseEvent(msg)
			if err != nil {
				log.Printf("realtime parse failed: %v", err)
				continue
			}
			if fire {
				onChange()
			}
		}

		if !sleepCtx(ctx, f.readRetry) {
			return
		}
	}
}

// parseEvent reports whether a frame carries a row change. Acks and
// heartbeats do not; server-side errors are surfaced but never fire.
func parseEvent(msg []byte) (bool, error) {
	var env struct {
		Event string `json:"event"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(msg, &env); err != nil {
		return false, err
	}
	if env.Error != nil {
		return false, errors.New(env.Error.Message)
	}
	switch env.Event {
	case "subscribed", "heartbeat", "":
		return false, nil
	}
	return true, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
