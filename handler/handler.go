// Package handler holds MessageHandler implementations for the reactor.
package handler

import (
	"github.com/fzft/go-frame-reactor/log"
	"github.com/fzft/go-frame-reactor/node"
	"go.uber.org/zap"
)

// Echo sends every message back to the connection it came from.
type Echo struct{}

func (Echo) OnMessageReceived(c node.Conn, msg []byte) error {
	c.SendMessage(msg)
	return nil
}

// Broadcaster queues a message on every live connection.
type Broadcaster interface {
	Broadcast(msg []byte) int
}

// Broadcast fans every message out to all live connections, the sender
// included.
type Broadcast struct {
	hub Broadcaster
}

func NewBroadcast(hub Broadcaster) *Broadcast {
	return &Broadcast{hub: hub}
}

func (b *Broadcast) OnMessageReceived(c node.Conn, msg []byte) error {
	n := b.hub.Broadcast(msg)
	log.Logger.Debug("broadcast", zap.String("from", c.ID()), zap.Int("receivers", n))
	return nil
}

// ByName returns the handler registered under name, nil if unknown.
func ByName(name string, hub Broadcaster) node.MessageHandler {
	switch name {
	case "echo", "":
		return Echo{}
	case "broadcast":
		return NewBroadcast(hub)
	}
	return nil
}
