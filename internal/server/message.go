package server

import (
	"encoding/json"
	"time"

	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message stamped with now
func NewMessage(messageType MessageType, data any, now time.Time) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: now,
	}, nil
}

// Client → Server Messages

// ActionData asks the table to dispatch an action
type ActionData struct {
	Action string          `json:"action"`
	Amount blackjack.Money `json:"amount,omitempty"`
}

// AmountData carries an insurance bid or a bet
type AmountData struct {
	Amount blackjack.Money `json:"amount"`
}

// AddFundsData tops up the bankroll, optionally retrying the blocked action
type AddFundsData struct {
	Amount blackjack.Money `json:"amount"`
	Retry  bool            `json:"retry"`
}

// Server → Client Messages

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ActionResultData answers a client request
type ActionResultData struct {
	Result game.Result `json:"result"`
}

type RevealData struct {
	ID     blackjack.CardID `json:"id"`
	Card   string           `json:"card"`
	Rank   blackjack.Rank   `json:"rank"`
	ShoeID int              `json:"shoeId"`
}

type CountData struct {
	Running int     `json:"running"`
	True    float64 `json:"true"`
}

type ShuffleData struct {
	ShoeID   int      `json:"shoeId"`
	Decks    int      `json:"decks"`
	CutIndex int      `json:"cutIndex"`
	AuditOK  bool     `json:"auditOk"`
	Issues   []string `json:"issues,omitempty"`
}

// InsuranceOfferData is sent when the table is waiting on an insurance bid
type InsuranceOfferData struct {
	game.InsuranceOffer
	TimeoutSeconds int `json:"timeoutSeconds"`
}

// TableInfo summarises a table for listings
type TableInfo struct {
	ID        string          `json:"id"`
	CreatedAt time.Time       `json:"createdAt"`
	Phase     game.Phase      `json:"phase"`
	Round     int             `json:"round"`
	Bankroll  blackjack.Money `json:"bankroll"`
	Clients   int             `json:"clients"`
	Owner     string          `json:"owner,omitempty"`
}

type TableListData struct {
	Tables []TableInfo `json:"tables"`
}
