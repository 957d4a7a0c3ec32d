package keeper

import (
	"github.com/elys-network/levvault/internal/chain"
	"github.com/elys-network/levvault/internal/events"
	"github.com/elys-network/levvault/internal/logger"
	"github.com/elys-network/levvault/internal/state"
)

// PersistEvents subscribes the state store to every committed transaction of
// rt. Events already in the log are written first so a store connected after
// deployment still holds the full history.
func PersistEvents(rt *chain.Runtime) {
	log := logger.GetForComponent("event_sink")

	save := func(batch []events.Event) {
		if !state.Enabled() || len(batch) == 0 {
			return
		}
		n, err := state.SaveEvents(batch)
		if err != nil {
			log.Error().Err(err).Int("batch", len(batch)).Msg("Failed to persist events")
			return
		}
		log.Debug().Int("inserted", n).Msg("Events persisted")
	}

	save(rt.Events().Since(0))
	rt.OnCommit(save)
}
