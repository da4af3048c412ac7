package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/ledger"
)

// ActionRequest is the body of POST /api/tables/{id}/actions
type ActionRequest struct {
	Type   string          `json:"type"`
	Amount blackjack.Money `json:"amount,omitempty"`
}

// ActionResponse reports an action and the table afterwards
type ActionResponse struct {
	Result   game.Result   `json:"result"`
	Snapshot game.Snapshot `json:"snapshot"`
}

// TableResponse is a table summary with its current state
type TableResponse struct {
	TableInfo
	Snapshot game.Snapshot `json:"snapshot"`
}

// LedgerResponse is the bankroll history of a table
type LedgerResponse struct {
	Series  ledger.Series  `json:"series"`
	Entries []ledger.Entry `json:"entries"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TableListData{Tables: s.Tables()})
}

func (s *Server) handleCreateTable(w http.ResponseWriter, r *http.Request) {
	var req CreateTableRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	t, err := s.CreateTable(r.Context(), req)
	if err != nil {
		s.logger.Error("Failed to create table", "error", err)
		writeError(w, http.StatusInternalServerError, "create_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, TableResponse{TableInfo: t.Info(), Snapshot: t.Snapshot()})
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, TableResponse{TableInfo: t.Info(), Snapshot: t.Snapshot()})
}

func (s *Server) handleCloseTable(w http.ResponseWriter, r *http.Request) {
	if err := s.CloseTable(chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, ErrTableNotFound) {
			writeError(w, http.StatusNotFound, "table_not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "close_failed", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	at, ok := game.ParseActionType(req.Type)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown_action", "Unknown action: "+req.Type)
		return
	}

	res, err := t.Dispatch(r.Context(), game.Action{Type: at, Amount: req.Amount})
	s.writeResult(w, t, res, err)
}

func (s *Server) handleAddFunds(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	var req AddFundsData
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	res, err := t.AddFunds(r.Context(), req.Amount, req.Retry)
	s.writeResult(w, t, res, err)
}

func (s *Server) handleDeclineFunds(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	res, err := t.DeclineFunds(r.Context())
	s.writeResult(w, t, res, err)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	l := t.Ledger()
	writeJSON(w, http.StatusOK, LedgerResponse{Series: l.Series(), Entries: l.Entries()})
}

// handleWebSocket streams table messages to the client, starting with the
// current snapshot.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	t, ok := s.tableFor(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, t, s.logger)
	if msg, err := NewMessage(MessageTypeSnapshot, t.Snapshot(), s.clock.Now()); err == nil {
		_ = client.SendMessage(msg) // Ignore send errors
	}
	t.hub.Register(client)
	client.Start()

	go func() {
		<-client.Done()
		t.hub.Unregister(client)
	}()
}

func (s *Server) tableFor(w http.ResponseWriter, r *http.Request) (*Table, bool) {
	id := chi.URLParam(r, "id")
	t, ok := s.Table(id)
	if !ok {
		writeError(w, http.StatusNotFound, "table_not_found", "Table not found: "+id)
	}
	return t, ok
}

// writeResult maps engine errors onto statuses. Rejected actions are not
// errors and come back as 200 with accepted=false.
func (s *Server) writeResult(w http.ResponseWriter, t *Table, res game.Result, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, game.ErrUnknownAction):
			status = http.StatusBadRequest
		case errors.Is(err, game.ErrActionInProgress):
			status = http.StatusConflict
		case errors.Is(err, game.ErrGameOver), errors.Is(err, ErrTableClosed):
			status = http.StatusGone
		}
		writeError(w, status, errorCode(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ActionResponse{Result: res, Snapshot: t.Snapshot()})
}

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // Ignore write errors
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorData{Code: code, Message: message})
}
