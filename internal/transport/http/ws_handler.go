package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Scofield321/cipherford/internal/app"
	"github.com/Scofield321/cipherford/internal/domain"
	"github.com/gorilla/websocket"
)

// RoomSubscriber attaches a connection to a room's broadcast group.
type RoomSubscriber interface {
	Subscribe(roomCode, userID string) (<-chan domain.Event, func())
}

type WSHandler struct {
	matches  *app.MatchService
	rooms    RoomSubscriber
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(matches *app.MatchService, rooms RoomSubscriber, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		matches: matches,
		rooms:   rooms,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitAnswerPayload struct {
	MatchQuestionID string `json:"matchQuestionId"`
	Player          int    `json:"player"`
	Answer          string `json:"answer"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// joinedPayload greets a new socket with the room state and its own seat.
type joinedPayload struct {
	domain.Scoreboard
	UserID string            `json:"userId"`
	Name   string            `json:"name"`
	Seat   domain.PlayerSlot `json:"seat"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets, joins the caller to the match
// room and serves the socket-side submit and finalize messages.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomCode := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("room")))
	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if roomCode == "" || userID == "" {
		writeError(w, h.logger, domain.Validation("missing room or userId"))
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		name = userID
	}
	board, err := h.matches.Scoreboard(r.Context(), roomCode)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := h.rooms.Subscribe(roomCode, userID)
	defer cancel()
	h.logger.Debug("ws connected", "room", roomCode, "user", userID, "name", name)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", "room", roomCode, "user", userID, "error", err)
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// reply gives up once the writer has exited, so a dead socket never
	// blocks the read loop on a full buffer.
	reply := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		}
	}

	ok := reply(outboundMessage{Type: "joined", Payload: joinedPayload{
		Scoreboard: board,
		UserID:     userID,
		Name:       name,
		Seat:       seatIn(board.Match, userID),
	}})
	for ok {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit_answer":
			var payload submitAnswerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				ok = reply(errorMessage(domain.Validation("invalid submit_answer payload")))
				continue
			}
			player := domain.PlayerSlot(payload.Player)
			if !player.Valid() {
				player = h.seatOf(r, roomCode, userID)
			}
			res, err := h.matches.SubmitAnswer(r.Context(), payload.MatchQuestionID, player, payload.Answer)
			if err != nil {
				ok = reply(errorMessage(err))
				continue
			}
			ok = reply(outboundMessage{Type: "answer_result", Payload: res})
		case "finalize_match":
			// the room receives match_completed through the broadcaster
			if _, err := h.matches.Finalize(r.Context(), roomCode); err != nil {
				ok = reply(errorMessage(err))
			}
		default:
			ok = reply(errorMessage(domain.Validation("unsupported message type %q", inbound.Type)))
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
	h.logger.Debug("ws disconnected", "room", roomCode, "user", userID)
}

// seatOf resolves which side of the match userID plays; zero when a spectator.
func (h *WSHandler) seatOf(r *http.Request, roomCode, userID string) domain.PlayerSlot {
	match, err := h.matches.MatchByRoomCode(r.Context(), roomCode)
	if err != nil {
		return 0
	}
	return seatIn(match, userID)
}

func seatIn(match domain.Match, userID string) domain.PlayerSlot {
	switch userID {
	case match.PlayerID(domain.PlayerOne):
		return domain.PlayerOne
	case match.PlayerID(domain.PlayerTwo):
		return domain.PlayerTwo
	}
	return 0
}

func errorMessage(err error) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{
		Kind:    domain.KindOf(err),
		Message: domain.Message(err),
	}}
}
