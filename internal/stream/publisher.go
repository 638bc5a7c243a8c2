// Package stream pushes scene changes and timeline display updates to a UI
// server over a WebSocket connection.
package stream

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/OCAP2/scene-engine/internal/engine"
	"github.com/OCAP2/scene-engine/internal/scene"
	"github.com/OCAP2/scene-engine/internal/timeline"
	"github.com/OCAP2/scene-engine/pkg/streaming"
)

// Config holds WebSocket publisher configuration.
type Config struct {
	URL    string
	Secret string
}

// Publisher streams scene data over WebSocket. It implements engine.Observer.
type Publisher struct {
	conn  *connection
	cfg   Config
	model *scene.Model

	sent    atomic.Uint64
	dropped atomic.Uint64
}

var _ engine.Observer = (*Publisher)(nil)

// New creates a new WebSocket publisher reading scene contents from model.
func New(cfg Config, model *scene.Model, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		conn:  newConnection(logger),
		cfg:   cfg,
		model: model,
	}
}

// Connect dials the WebSocket server.
func (p *Publisher) Connect() error {
	return p.conn.dial(p.cfg.URL, p.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (p *Publisher) Close() error {
	return p.conn.close()
}

// Sent returns how many messages were handed to the write loop.
func (p *Publisher) Sent() uint64 {
	return p.sent.Load()
}

// Dropped returns how many messages could not be encoded.
func (p *Publisher) Dropped() uint64 {
	return p.dropped.Load()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (p *Publisher) sendEnvelope(msgType string, payload any) []byte {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		p.dropped.Add(1)
		p.conn.logger.Warn("Dropping stream message", "type", msgType, "error", err)
		return nil
	}
	p.conn.send(data)
	p.sent.Add(1)
	return data
}

func (p *Publisher) scenePayload(gen uint64) (streaming.ScenePayload, bool) {
	s, ok := p.model.Scene()
	if !ok {
		return streaming.ScenePayload{}, false
	}
	return streaming.ScenePayload{
		Generation: gen,
		Scene:      s,
		Objects:    p.model.ObjectCounts(),
		Summary:    p.model.Summary(),
	}, true
}

// PublishScene sends the current scene and waits for the server to acknowledge it.
// It is used once after Connect so the server starts from a known scene.
func (p *Publisher) PublishScene() error {
	payload, ok := p.scenePayload(p.model.Generation())
	if !ok {
		data, err := marshalEnvelope(streaming.TypeSceneCleared, streaming.ErrorPayload{Generation: p.model.Generation()})
		if err != nil {
			return err
		}
		p.conn.setCached(nil)
		return p.conn.sendAndWait(data, streaming.TypeSceneCleared, ackTimeout)
	}
	data, err := marshalEnvelope(streaming.TypeSceneLoaded, payload)
	if err != nil {
		return err
	}
	p.conn.setCached(data)
	return p.conn.sendAndWait(data, streaming.TypeSceneLoaded, ackTimeout)
}

// OnSceneEvent translates engine events into stream messages.
func (p *Publisher) OnSceneEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventCreated, engine.EventLoaded:
		if payload, ok := p.scenePayload(ev.Generation); ok {
			p.conn.setCached(p.sendEnvelope(streaming.TypeSceneLoaded, payload))
		}
	case engine.EventEdited:
		if payload, ok := p.scenePayload(ev.Generation); ok {
			p.sendEnvelope(streaming.TypeSceneEdited, payload)
			// a reconnect should replay the edited scene, not the original
			if data, err := marshalEnvelope(streaming.TypeSceneLoaded, payload); err == nil {
				p.conn.setCached(data)
			}
		}
	case engine.EventCleared:
		p.conn.setCached(nil)
		p.sendEnvelope(streaming.TypeSceneCleared, streaming.ErrorPayload{Generation: ev.Generation})
	case engine.EventObjects:
		snap, err := p.model.Snapshot()
		if err != nil {
			return
		}
		p.sendEnvelope(streaming.TypeObjects, streaming.ObjectsPayload{Generation: ev.Generation, Objects: snap.Objects})
	case engine.EventGeometry:
		p.sendEnvelope(streaming.TypeGeometryLoaded, streaming.GeometryPayload{
			Generation: ev.Generation,
			Buildings:  p.model.Buildings(),
			Roads:      p.model.Roads(),
		})
	case engine.EventFetchFailed:
		msg := "geometry unavailable"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		p.sendEnvelope(streaming.TypeFetchFailed, streaming.ErrorPayload{Generation: ev.Generation, Message: msg})
	}
}

// OnDisplay sends a timeline display update.
func (p *Publisher) OnDisplay(u timeline.DisplayUpdate) {
	p.sendEnvelope(streaming.TypeDisplayUpdate, streaming.DisplayPayload{
		Offset:   u.Offset,
		Duration: u.Duration,
		Absolute: u.Absolute,
		Relative: u.Relative,
		Display:  u.Display,
		State:    u.State.String(),
		Reason:   string(u.Reason),
	})
}
