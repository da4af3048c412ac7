package server

// MessageType represents a WebSocket message type with type safety
type MessageType string

// WebSocket message type constants
const (
	// Client to server messages
	MessageTypeAction       MessageType = "action"
	MessageTypeInsurance    MessageType = "insurance_decision"
	MessageTypeAddFunds     MessageType = "add_funds"
	MessageTypeDeclineFunds MessageType = "decline_funds"
	MessageTypeSetBet       MessageType = "set_bet"

	// Server to client messages
	MessageTypeSnapshot          MessageType = "snapshot"
	MessageTypeActionResult      MessageType = "action_result"
	MessageTypeReveal            MessageType = "reveal"
	MessageTypeCount             MessageType = "count"
	MessageTypeShuffle           MessageType = "shuffle"
	MessageTypeInsuranceOffer    MessageType = "insurance_offer"
	MessageTypeInsuranceResolved MessageType = "insurance_resolved"
	MessageTypeFundsNeeded       MessageType = "funds_needed"
	MessageTypeResult            MessageType = "result"
	MessageTypeRoundSettled      MessageType = "round_settled"
	MessageTypeError             MessageType = "error"
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
