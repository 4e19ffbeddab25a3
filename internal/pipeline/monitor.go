package pipeline

import (
	"time"

	"github.com/smazurov/castnode/internal/engine"
	"github.com/smazurov/castnode/internal/events"
	"github.com/smazurov/castnode/internal/outputs"
)

const busPollInterval = 100 * time.Millisecond

// monitor drains the engine bus and forwards errors to the control
// goroutine.
func (p *Pipeline) monitor() {
	defer p.wg.Done()
	bus := p.g.Container()
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		msg := bus.PopMessage(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type {
		case engine.MessageError:
			m := *msg
			p.post(func() { p.handleError(m) })
		case engine.MessageWarning:
			p.logger.Warn("Engine warning", "source", msg.Source, "message", msg.Text)
		case engine.MessageEOS:
			p.logger.Debug("End of stream", "source", msg.Source)
		}
	}
}

// handleError turns errors of stream branches into a reconnect cycle. Other
// errors are only logged.
func (p *Pipeline) handleError(msg engine.Message) {
	b := p.reg.ByElement(msg.Source)
	if b == nil {
		p.logger.Error("Engine error", "source", msg.Source, "message", msg.Text, "debug", msg.Debug)
		return
	}
	p.bus.Publish(events.SinkErrorEvent{
		BranchID:  b.ID,
		Element:   msg.Source,
		Message:   msg.Text,
		Timestamp: events.Now(),
	})
	if b.Kind != outputs.KindStream || p.state != StatePlaying {
		p.logger.Error("Output branch error", "branch_id", b.ID, "source", msg.Source, "message", msg.Text)
		return
	}
	p.startReconnect(b)
}

type reconnect struct {
	branch *outputs.Branch
	timer  *time.Timer
}

// startReconnect parks b and schedules a resume after the reconnect
// interval. Retries continue at that interval while b stays attached.
func (p *Pipeline) startReconnect(b *outputs.Branch) {
	if _, busy := p.reconnects[b.ID]; busy {
		return
	}
	if !p.reg.Attached(b) {
		return
	}
	if err := p.reg.Park(p.ctx, b); err != nil {
		p.logger.Error("Parking stream branch failed", "branch_id", b.ID, "error", err)
		p.publishReconnect(b, events.ReconnectFailed, err)
		return
	}
	rc := &reconnect{branch: b}
	p.reconnects[b.ID] = rc
	p.attempts[b.ID]++
	p.publishReconnect(b, events.ReconnectWaiting, nil)
	p.logger.Warn("Stream branch down, reconnecting", "branch_id", b.ID, "sink", b.Sink.Name,
		"interval", p.cfg.ReconnectInterval)
	p.scheduleResume(rc)
}

func (p *Pipeline) scheduleResume(rc *reconnect) {
	id := rc.branch.ID
	rc.timer = time.AfterFunc(p.cfg.ReconnectInterval, func() {
		p.post(func() { p.resume(id) })
	})
}

func (p *Pipeline) resume(id string) {
	rc := p.reconnects[id]
	if rc == nil {
		return
	}
	b := rc.branch
	if p.reg.Get(id) == nil || !p.reg.Parked(b) {
		delete(p.reconnects, id)
		return
	}
	if err := p.reg.Resume(b); err != nil {
		p.logger.Warn("Stream branch resume failed", "branch_id", id, "error", err)
		p.publishReconnect(b, events.ReconnectFailed, err)
		p.attempts[id]++
		p.scheduleResume(rc)
		return
	}
	delete(p.reconnects, id)
	p.publishReconnect(b, events.ReconnectResumed, nil)
	p.logger.Info("Stream branch resumed", "branch_id", id, "attempt", p.attempts[id])
}

func (p *Pipeline) publishReconnect(b *outputs.Branch, phase string, err error) {
	ev := events.BranchReconnectEvent{
		BranchID:  b.ID,
		Attempt:   p.attempts[b.ID],
		Phase:     phase,
		Timestamp: events.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.bus.Publish(ev)
}

// cancelReconnects stops every pending resume.
func (p *Pipeline) cancelReconnects() {
	for id, rc := range p.reconnects {
		if rc.timer != nil {
			rc.timer.Stop()
		}
		delete(p.reconnects, id)
	}
}
