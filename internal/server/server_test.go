package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/lox/blackjack/blackjack"
	"github.com/lox/blackjack/internal/auth"
	"github.com/lox/blackjack/internal/config"
	"github.com/lox/blackjack/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func newTestServer(t *testing.T, opts ...game.Option) (*Server, *httptest.Server) {
	t.Helper()
	opts = append([]game.Option{game.WithPacing(game.Pacing{})}, opts...)
	s := NewServer(config.Default(), testLogger(),
		WithSeeds(func() int64 { return 7 }),
		WithTableOptions(opts...))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Stop)
	return s, ts
}

func stacked(cards string) game.Option {
	return game.WithStackedCards(blackjack.MustParseCards(cards)...)
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, r)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func createTable(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	var created TableResponse
	require.Equal(t, http.StatusCreated, doJSON(t, http.MethodPost, ts.URL+"/api/tables", nil, &created))
	require.NotEmpty(t, created.ID)
	return created.ID
}

func act(t *testing.T, ts *httptest.Server, id, action string, amount blackjack.Money) ActionResponse {
	t.Helper()
	var out ActionResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/api/tables/"+id+"/actions", ActionRequest{Type: action, Amount: amount}, &out)
	require.Equal(t, http.StatusOK, status)
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestTableLifecycle(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, stacked("Ts 9h Qd 8c"))

	id := createTable(t, ts)

	var list TableListData
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/tables", nil, &list))
	require.Len(t, list.Tables, 1)
	assert.Equal(t, id, list.Tables[0].ID)
	assert.Equal(t, blackjack.Dollars(500), list.Tables[0].Bankroll)

	start := act(t, ts, id, "START_ROUND", 0)
	require.True(t, start.Result.Accepted, start.Result.Reason)
	assert.Equal(t, game.PhasePlayerActing, start.Snapshot.Phase)
	assert.True(t, start.Snapshot.Dealer.HoleHidden)
	assert.True(t, start.Snapshot.Dealer.Cards[1].IsZero(), "hole card stays hidden")

	stand := act(t, ts, id, "stand", 0)
	require.True(t, stand.Result.Accepted, stand.Result.Reason)
	assert.True(t, stand.Result.RoundOver)
	assert.Equal(t, blackjack.Dollars(525), stand.Snapshot.Bankroll)
	assert.Equal(t, game.OutcomeWin, stand.Snapshot.Hands[0].Outcome)

	var ledgerResp LedgerResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/tables/"+id+"/ledger", nil, &ledgerResp))
	require.Len(t, ledgerResp.Entries, 1)
	assert.Equal(t, blackjack.Dollars(525), ledgerResp.Entries[0].BankrollAfter)
	assert.Equal(t, []int{1}, ledgerResp.Series.X)

	var table TableResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodGet, ts.URL+"/api/tables/"+id, nil, &table))
	assert.Equal(t, 1, table.Round)

	assert.Equal(t, http.StatusNoContent, doJSON(t, http.MethodDelete, ts.URL+"/api/tables/"+id, nil, nil))
	var notFound ErrorData
	assert.Equal(t, http.StatusNotFound, doJSON(t, http.MethodGet, ts.URL+"/api/tables/"+id, nil, &notFound))
	assert.Equal(t, "table_not_found", notFound.Code)
}

func TestActionErrors(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)
	id := createTable(t, ts)

	var errData ErrorData
	status := doJSON(t, http.MethodPost, ts.URL+"/api/tables/"+id+"/actions", ActionRequest{Type: "fold"}, &errData)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "unknown_action", errData.Code)

	status = doJSON(t, http.MethodPost, ts.URL+"/api/tables/nope/actions", ActionRequest{Type: "hit"}, &errData)
	assert.Equal(t, http.StatusNotFound, status)

	// a rule violation is a normal response
	res := act(t, ts, id, "hit", 0)
	assert.False(t, res.Result.Accepted)
	assert.Equal(t, "no round in progress", res.Result.Reason)
}

func TestInsuranceOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t,
		game.WithScenario(game.Scenario{Insurance: game.InsuranceScenarioNoBlackjack}),
		stacked("Ts 8d"))
	id := createTable(t, ts)

	started := make(chan ActionResponse, 1)
	go func() {
		var out ActionResponse
		doJSON(t, http.MethodPost, ts.URL+"/api/tables/"+id+"/actions", ActionRequest{Type: "START_ROUND"}, &out)
		started <- out
	}()

	require.Eventually(t, func() bool {
		var out ActionResponse
		doJSON(t, http.MethodPost, ts.URL+"/api/tables/"+id+"/actions",
			ActionRequest{Type: "INSURANCE_DECISION", Amount: blackjack.Dollars(10)}, &out)
		return out.Result.Accepted
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case res := <-started:
		require.True(t, res.Result.Accepted, res.Result.Reason)
		assert.Equal(t, blackjack.Dollars(465), res.Snapshot.Bankroll)
		assert.Nil(t, res.Snapshot.InsuranceOffer)
	case <-time.After(5 * time.Second):
		t.Fatal("round did not continue after the insurance decision")
	}
}

func TestFundsOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, game.WithBankroll(blackjack.Dollars(30)), stacked("6s 9h 5d 7c Ts 9c"))
	id := createTable(t, ts)

	act(t, ts, id, "START_ROUND", 0)
	double := act(t, ts, id, "DOUBLE", 0)
	assert.False(t, double.Result.Accepted)
	require.NotNil(t, double.Result.Funds)
	assert.Equal(t, game.FundsDouble, double.Result.Funds.Reason)
	require.NotNil(t, double.Snapshot.Funds)

	var out ActionResponse
	status := doJSON(t, http.MethodPost, ts.URL+"/api/tables/"+id+"/funds", AddFundsData{Amount: blackjack.Dollars(50), Retry: true}, &out)
	require.Equal(t, http.StatusOK, status)
	require.True(t, out.Result.Accepted, out.Result.Reason)
	assert.Equal(t, game.ActionDouble, out.Result.Action)
	assert.Equal(t, blackjack.Dollars(130), out.Snapshot.Bankroll)
	assert.Nil(t, out.Snapshot.Funds)
}

func TestDeclineFundsOverHTTP(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, game.WithBankroll(blackjack.Dollars(30)), stacked("8s 9h 8d 7c"))
	id := createTable(t, ts)

	act(t, ts, id, "START_ROUND", 0)
	split := act(t, ts, id, "SPLIT", 0)
	require.NotNil(t, split.Result.Funds)

	var out ActionResponse
	require.Equal(t, http.StatusOK, doJSON(t, http.MethodDelete, ts.URL+"/api/tables/"+id+"/funds", nil, &out))
	assert.True(t, out.Result.Accepted)
	assert.True(t, out.Snapshot.NoNewBets)
	assert.False(t, out.Snapshot.Can(game.ActionSplit))
}

func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) []*Message {
	t.Helper()
	var seen []*Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		seen = append(seen, &msg)
		if msg.Type == want {
			return seen
		}
	}
}

func types(msgs []*Message) []MessageType {
	out := make([]MessageType, len(msgs))
	for i, m := range msgs {
		out[i] = m.Type
	}
	return out
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, data any) {
	t.Helper()
	msg, err := NewMessage(typ, data, time.Now())
	require.NoError(t, err)
	msg.RequestID = string(typ)
	require.NoError(t, conn.WriteJSON(msg))
}

func TestWebSocketStream(t *testing.T) {
	t.Parallel()
	s, ts := newTestServer(t, stacked("Ts 9h Qd 8c"))
	id := createTable(t, ts)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/tables/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readUntil(t, conn, MessageTypeSnapshot)
	require.Len(t, first, 1)

	table, ok := s.Table(id)
	require.True(t, ok)
	require.Eventually(t, func() bool { return table.Info().Clients == 1 }, time.Second, time.Millisecond)

	send(t, conn, MessageTypeAction, ActionData{Action: "deal"})
	msgs := readUntil(t, conn, MessageTypeActionResult)
	seen := types(msgs)
	assert.Contains(t, seen, MessageTypeSnapshot)
	assert.Contains(t, seen, MessageTypeReveal)
	assert.Contains(t, seen, MessageTypeCount)

	reveals := 0
	for _, m := range msgs {
		if m.Type == MessageTypeReveal {
			reveals++
		}
	}
	assert.Equal(t, 3, reveals, "the hole card is not revealed yet")

	var result ActionResultData
	last := msgs[len(msgs)-1]
	require.NoError(t, json.Unmarshal(last.Data, &result))
	assert.True(t, result.Result.Accepted)
	assert.Equal(t, "action", last.RequestID)

	send(t, conn, MessageTypeAction, ActionData{Action: "stand"})
	msgs = readUntil(t, conn, MessageTypeActionResult)
	seen = types(msgs)
	require.Contains(t, seen, MessageTypeRoundSettled)
	assert.Contains(t, seen, MessageTypeResult)

	for _, m := range msgs {
		if m.Type != MessageTypeRoundSettled {
			continue
		}
		var settled game.Settlement
		require.NoError(t, json.Unmarshal(m.Data, &settled))
		assert.Equal(t, blackjack.Dollars(525), settled.BankrollAfter)
		assert.Equal(t, blackjack.Dollars(25), settled.Delta)
	}
}

func TestWebSocketInsurance(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t,
		game.WithScenario(game.Scenario{Insurance: game.InsuranceScenarioBlackjack}),
		stacked("Ts 8d"))
	id := createTable(t, ts)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/tables/"+id+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, MessageTypeSnapshot)

	send(t, conn, MessageTypeAction, ActionData{Action: "START_ROUND"})
	msgs := readUntil(t, conn, MessageTypeInsuranceOffer)

	var offer InsuranceOfferData
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Data, &offer))
	assert.Equal(t, blackjack.FromFloat(12.50), offer.Max)
	assert.Equal(t, 30, offer.TimeoutSeconds)

	send(t, conn, MessageTypeInsurance, AmountData{Amount: offer.Max})
	msgs = readUntil(t, conn, MessageTypeRoundSettled)
	assert.Contains(t, types(msgs), MessageTypeInsuranceResolved)

	var settled game.Settlement
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Data, &settled))
	// the main bet loses, insurance pays 2:1
	assert.Zero(t, settled.Delta)
	assert.Equal(t, blackjack.Dollars(500), settled.BankrollAfter)
}

func TestWebSocketUnknownMessage(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t)
	id := createTable(t, ts)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/tables/"+id+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, MessageTypeSnapshot)

	send(t, conn, "juggle", nil)
	msgs := readUntil(t, conn, MessageTypeError)
	var errData ErrorData
	require.NoError(t, json.Unmarshal(msgs[len(msgs)-1].Data, &errData))
	assert.Equal(t, "unknown_message_type", errData.Code)
}

func TestCloseTableRejectsRequests(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t)

	table, err := s.CreateTable(context.Background(), CreateTableRequest{})
	require.NoError(t, err)
	require.NoError(t, s.CloseTable(table.ID))

	_, err = table.Dispatch(context.Background(), game.Action{Type: game.ActionStartRound})
	assert.ErrorIs(t, err, ErrTableClosed)
	assert.Equal(t, game.PhaseGameOver, table.Snapshot().Phase)
	assert.ErrorIs(t, s.CloseTable(table.ID), ErrTableNotFound)
}

type tokenValidator map[string]*auth.Identity

func (v tokenValidator) Validate(_ context.Context, token string) (*auth.Identity, error) {
	if token == "down" {
		return nil, auth.ErrUnavailable
	}
	id, ok := v[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return id, nil
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	s := NewServer(config.Default(), testLogger(),
		WithTableOptions(game.WithPacing(game.Pacing{})),
		WithAuth(tokenValidator{"secret": {PlayerID: "p1", Name: "ana"}}))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(s.Stop)

	post := func(token string) (int, TableResponse) {
		req, err := http.NewRequest(http.MethodPost, ts.URL+"/api/tables", nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out TableResponse
		if resp.StatusCode == http.StatusCreated {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp.StatusCode, out
	}

	status, _ := post("")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = post("wrong")
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = post("down")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, created := post("secret")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "p1", created.Owner)

	// health stays open
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
