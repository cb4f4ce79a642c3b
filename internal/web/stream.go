package web

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/metalagman/quorum/internal/events"
	"github.com/rs/zerolog/log"
)

// Stream replays the logged events of a run after afterSeq, then forwards live
// events until the run finishes, ctx ends or send fails. Events are persisted
// before they are published, so a gap in live sequence numbers is filled from
// the log.
func Stream(ctx context.Context, runs Runs, runID string, afterSeq int64, send func(events.Event) error) error {
	sub := runs.Subscribe(runID)
	defer sub.Close()

	last := afterSeq
	catchUp := func() error {
		evs, err := runs.Events(ctx, runID, last)
		if err != nil {
			return err
		}
		for _, ev := range evs {
			if err := send(ev); err != nil {
				return err
			}
			last = ev.Seq
		}
		return nil
	}

	if err := catchUp(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C:
			if !ok {
				return catchUp()
			}
			switch {
			case ev.Seq == 0:
				// not persisted; forward as is
			case ev.Seq <= last:
				continue
			case ev.Seq > last+1:
				if err := catchUp(); err != nil {
					return err
				}
				continue
			default:
				last = ev.Seq
			}
			if err := send(ev); err != nil {
				return err
			}
		}
	}
}

func (s *Server) handleStream(c *websocket.Conn) {
	runID := c.Params("id")
	after, err := strconv.ParseInt(c.Query("after", "0"), 10, 64)
	if err != nil || after < 0 {
		_ = c.WriteJSON(fiber.Map{"error": "after must be a non-negative integer"})
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	err = Stream(ctx, s.runs, runID, after, func(ev events.Event) error {
		return c.WriteJSON(ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Debug().Err(err).Str("run_id", runID).Msg("event stream ended")
		_ = c.WriteJSON(fiber.Map{"error": err.Error()})
	}
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
