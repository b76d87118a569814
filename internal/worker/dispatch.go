package worker

import (
	"context"
	"fmt"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/satoshigo/hunt/internal/dispatcher"
	"github.com/satoshigo/hunt/internal/influx"
	"github.com/satoshigo/hunt/pkg/core"
	"github.com/satoshigo/hunt/pkg/streaming"
)

// RegisterHandlers registers all event handlers with the dispatcher. Area and
// collect events are buffered and dropped when their queue is full so the
// engine never waits on a slow consumer. Funding confirmations are rare and
// block for room instead. A command that already has a handler is an error,
// since Register would silently replace it.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher, bufferSize int) error {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	handlers := []struct {
		cmd  string
		h    dispatcher.HandlerFunc
		opts []dispatcher.Option
	}{
		{core.CmdAreaCreated, m.handleAreaCreated, []dispatcher.Option{dispatcher.Buffered(bufferSize)}},
		{core.CmdFundingConfirmed, m.handleFundingConfirmed, []dispatcher.Option{dispatcher.Buffered(bufferSize/10 + 1), dispatcher.Blocking()}},
		{core.CmdItemCollected, m.handleItemCollected, []dispatcher.Option{dispatcher.Buffered(bufferSize)}},
	}
	for _, r := range handlers {
		if d.HasHandler(r.cmd) {
			return fmt.Errorf("handler for %s already registered", r.cmd)
		}
	}
	for _, r := range handlers {
		d.Register(r.cmd, r.h, append(r.opts, dispatcher.Logged())...)
	}
	return nil
}

func (m *Manager) handleAreaCreated(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(core.AreaCreated)
	if !ok {
		return nil, payloadError(e)
	}
	return nil, m.publish(streaming.TypeAreaCreated, ev.GameID, streaming.FromArea(ev.Area))
}

func (m *Manager) handleFundingConfirmed(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(core.FundingConfirmed)
	if !ok {
		return nil, payloadError(e)
	}
	m.writePoint(influx.FundingPoint(ev))
	return nil, m.publish(streaming.TypeFundingConfirmed, ev.Funding.GameID, streaming.FundingConfirmedPayload{
		PaymentHash:  ev.Funding.ID,
		GameID:       ev.Funding.GameID,
		Amount:       ev.Funding.Amount,
		AreaCount:    ev.AreaCount,
		ItemsPerArea: ev.ItemsPerArea,
		PerItemValue: ev.PerItemValue,
		Unallocated:  ev.Unallocated,
	})
}

func (m *Manager) handleItemCollected(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(core.ItemCollected)
	if !ok {
		return nil, payloadError(e)
	}
	m.writePoint(influx.CollectPoint(ev))
	return nil, m.publish(streaming.TypeItemCollected, ev.GameID, streaming.ItemCollectedPayload{
		Item:     streaming.FromItem(ev.Item),
		PlayerID: ev.PlayerID,
	})
}

func (m *Manager) publish(msgType, gameID string, payload any) error {
	env, err := streaming.NewEnvelope(msgType, gameID, payload)
	if err != nil {
		return fmt.Errorf("build %s envelope: %w", msgType, err)
	}
	if err := m.deps.Publisher.Publish(context.Background(), env); err != nil {
		return fmt.Errorf("publish %s: %w", msgType, err)
	}
	return nil
}

// writePoint is best effort; a failed point is logged and forgotten.
func (m *Manager) writePoint(p *influxdb2_write.Point) {
	if m.deps.Points == nil {
		return
	}
	if err := m.deps.Points.WritePoint(p); err != nil {
		m.deps.Logger.Warn("Failed to write point", "measurement", p.Name(), "error", err)
	}
}

func payloadError(e dispatcher.Event) error {
	return fmt.Errorf("%s: unexpected payload %T", e.Command, e.Payload)
}
