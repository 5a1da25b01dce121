package client

import (
	"context"
	"sync"
	"time"

	"github.com/tmarais/backchannel/pkg/protocol"
)

// reconnect runs the DRAINING, SYNCING, COMMITTING, DONE machine after the
// transport for lostEpoch failed.
func (c *Client) reconnect(ctx context.Context, lostEpoch int) {
	c.mu.Lock()
	if c.closed || c.epoch != lostEpoch {
		c.mu.Unlock()
		return
	}
	c.epoch++
	epoch := c.epoch
	c.state = StateDraining
	c.tr = nil

	// In-flight synchronize requests pertain to the dead connection; their
	// replies would carry a defunct cursor. Everything else stays pending
	// until COMMITTING decides its fate.
	var dropped []*call
	for id, cl := range c.pending {
		if cl.req.Name == protocol.ReqSynchronize {
			delete(c.pending, id)
			dropped = append(dropped, cl)
		}
	}
	c.mu.Unlock()

	for _, cl := range dropped {
		cl.done <- failFor(cl.req, protocol.NewError(protocol.ErrObsolete, "superseded by reconnection"))
	}

	tr := c.redial(ctx)
	if tr == nil {
		return
	}
	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		tr.Close()
		return
	}
	c.tr = tr
	c.state = StateSyncing
	games := make(map[string]int, len(c.games))
	for id, g := range c.games {
		games[id] = g.phasesHeld
	}
	c.mu.Unlock()
	go c.readLoop(tr, epoch)

	// One synchronize per observed game, in parallel. A failed or timed-out
	// sync is logged and skipped; its late reply, if any, finds no pending
	// call and is dropped.
	synced := make(map[string]bool, len(games))
	var syncedMu sync.Mutex
	var wg sync.WaitGroup
	for gameID, held := range games {
		wg.Add(1)
		go func(gameID string, held int) {
			defer wg.Done()
			syncCtx, cancel := context.WithTimeout(ctx, syncTimeout)
			defer cancel()
			_, err := c.Do(syncCtx, protocol.ReqSynchronize, gameID,
				protocol.SynchronizeData{LastKnownPhaseIndex: held})
			if err != nil {
				c.log.Warn().Err(err).Str("gameId", gameID).Msg("Game sync failed, skipping")
				return
			}
			syncedMu.Lock()
			synced[gameID] = true
			syncedMu.Unlock()
		}(gameID, held)
	}
	wg.Wait()

	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		return
	}
	c.state = StateCommitting
	// Every pending call not already sent on the new transport is replayed.
	// Phase-dependent requests must match the phase the server just
	// reported; a stale or unsyncable phase makes them obsolete.
	var obsolete []*call
	var replay []*call
	for id, cl := range c.pending {
		if cl.epoch == epoch {
			continue // already went out on this transport
		}
		if cl.req.PhaseDependent {
			g := c.games[cl.req.GameID]
			if g == nil || !synced[cl.req.GameID] || cl.req.Phase != g.phase {
				delete(c.pending, id)
				obsolete = append(obsolete, cl)
				continue
			}
		}
		cl.req.ReSent = true
		cl.epoch = epoch
		replay = append(replay, cl)
	}
	c.mu.Unlock()

	for _, cl := range obsolete {
		cl.done <- failFor(cl.req, protocol.NewError(protocol.ErrObsolete, "phase changed during reconnection"))
	}
	for _, cl := range replay {
		if err := tr.Send(&protocol.Frame{Request: cl.req}); err != nil {
			c.log.Warn().Err(err).Str("request", cl.req.RequestID).Msg("Replay failed")
		}
	}

	c.mu.Lock()
	c.state = StateDone
	c.mu.Unlock()
	c.log.Info().Int("replayed", len(replay)).Int("obsolete", len(obsolete)).Msg("Reconnected")
	select {
	case c.reconnected <- struct{}{}:
	default:
	}
}

// redial retries the dialer with backoff until it succeeds or the client
// closes.
func (c *Client) redial(ctx context.Context) Transport {
	backoff := 100 * time.Millisecond
	for {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if closed || ctx.Err() != nil {
			return nil
		}
		tr, err := c.dial(ctx)
		if err == nil {
			return tr
		}
		c.log.Warn().Err(err).Dur("backoff", backoff).Msg("Redial failed")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
}
