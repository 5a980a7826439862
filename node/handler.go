package node

import (
	"github.com/fzft/go-frame-reactor/log"
	"go.uber.org/zap"
)

// MessageHandler receives every decoded message. It runs inline on the
// reactor that read the message, so it must not block for long. A returned
// error closes the connection.
type MessageHandler interface {
	OnMessageReceived(c Conn, msg []byte) error
}

// HandlerFunc adapts a function to MessageHandler.
type HandlerFunc func(c Conn, msg []byte) error

func (f HandlerFunc) OnMessageReceived(c Conn, msg []byte) error {
	return f(c, msg)
}

// DefaultHandler echoes every message back to its sender.
type DefaultHandler struct{}

func (DefaultHandler) OnMessageReceived(c Conn, msg []byte) error {
	log.Logger.Debug("read data", zap.Uint32("token", uint32(c.Token())), zap.Int("len", len(msg)))
	c.SendMessage(msg)
	return nil
}
