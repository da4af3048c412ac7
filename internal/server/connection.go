package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/internal/game"
)

// Connection represents a WebSocket connection watching one table
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	table     *Table
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, table *Table, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan *Message, 256),
		table:  table,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendMessage queues a message for the client
func (c *Connection) SendMessage(msg *Message) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		c.logger.Warn("Connection send buffer full, closing connection")
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var (
	ErrConnectionClosed = errors.New("connection closed")
)

// readPump handles incoming messages from the client
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Debug("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// handleMessage processes incoming messages from the client. Table
// operations run off the read loop so an insurance decision can still be
// read while the round that asked for it is waiting.
func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type)

	switch msg.Type {
	case MessageTypeAction:
		var data ActionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse action data")
			return
		}
		t, ok := game.ParseActionType(data.Action)
		if !ok {
			c.sendError(msg, "unknown_action", "Unknown action: "+data.Action)
			return
		}
		c.async(msg, func(ctx context.Context) (game.Result, error) {
			return c.table.Dispatch(ctx, game.Action{Type: t, Amount: data.Amount})
		})

	case MessageTypeInsurance:
		var data AmountData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse insurance data")
			return
		}
		res, err := c.table.Dispatch(c.ctx, game.Action{Type: game.ActionInsuranceDecision, Amount: data.Amount})
		c.reply(msg, res, err)

	case MessageTypeAddFunds:
		var data AddFundsData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse funds data")
			return
		}
		c.async(msg, func(ctx context.Context) (game.Result, error) {
			return c.table.AddFunds(ctx, data.Amount, data.Retry)
		})

	case MessageTypeDeclineFunds:
		c.async(msg, c.table.DeclineFunds)

	case MessageTypeSetBet:
		var data AmountData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			c.sendError(msg, "invalid_message", "Failed to parse bet data")
			return
		}
		c.async(msg, func(ctx context.Context) (game.Result, error) {
			return c.table.SetBet(ctx, data.Amount)
		})

	default:
		c.sendError(msg, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) async(msg *Message, fn func(ctx context.Context) (game.Result, error)) {
	go func() {
		res, err := fn(c.ctx)
		c.reply(msg, res, err)
	}()
}

func (c *Connection) reply(req *Message, res game.Result, err error) {
	if err != nil {
		c.sendError(req, errorCode(err), err.Error())
		return
	}
	c.respond(req, MessageTypeActionResult, ActionResultData{Result: res})
}

// sendError sends an error message to the client
func (c *Connection) sendError(req *Message, code, message string) {
	c.respond(req, MessageTypeError, ErrorData{Code: code, Message: message})
}

func (c *Connection) respond(req *Message, t MessageType, data any) {
	msg, err := NewMessage(t, data, c.table.clock.Now())
	if err != nil {
		c.logger.Error("Failed to create message", "error", err)
		return
	}
	msg.RequestID = req.RequestID
	_ = c.SendMessage(msg) // Ignore send errors
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, game.ErrActionInProgress):
		return "action_in_progress"
	case errors.Is(err, game.ErrGameOver):
		return "game_over"
	case errors.Is(err, game.ErrUnknownAction):
		return "unknown_action"
	case errors.Is(err, game.ErrMissingCapability):
		return "misconfigured"
	case errors.Is(err, ErrTableClosed):
		return "table_closed"
	default:
		return "action_failed"
	}
}
