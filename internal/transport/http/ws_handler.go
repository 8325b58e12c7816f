package http

import (
	"encoding/json"
	"log"
	"net/http"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// WSHandler keeps one websocket per open attempt so the client can stream
// answers and focus changes without a request per event.
type WSHandler struct {
	service  *app.AttemptService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origins are enforced by the CORS layer and the bearer token.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID      string   `json:"questionId"`
	SelectedOptions []string `json:"selectedOptions"`
}

type answerSaved struct {
	QuestionID string `json:"questionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// outbox feeds the connection's single writer. Once the writer has stopped,
// push drops messages instead of blocking the read loop.
type outbox struct {
	send chan outboundMessage[any]
	done chan struct{}
}

func newOutbox(size int) *outbox {
	return &outbox{send: make(chan outboundMessage[any], size), done: make(chan struct{})}
}

func (o *outbox) push(msg outboundMessage[any]) {
	select {
	case o.send <- msg:
	case <-o.done:
	}
}

func errorMessage(err error) outboundMessage[any] {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("ws: %v", err)
		msg = "internal error"
	}
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg, Status: status}}
}

// ServeWS upgrades the request and relays attempt events until the client
// disconnects or the attempt is sealed.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	id, _ := auth.FromContext(r.Context())
	studentID := id.Subject

	// Fail ownership and existence checks before upgrading.
	current, err := h.service.GetAttempt(r.Context(), attemptID, studentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := newOutbox(16)

	go func() {
		defer close(out.done)
		for msg := range out.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// Unblocks the reader so the handler can return.
				conn.Close()
				return
			}
		}
	}()

	out.push(outboundMessage[any]{Type: "attempt", Payload: current})

	for sealed := current.Attempt.IsCompleted; !sealed; {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload", Status: http.StatusBadRequest}})
				continue
			}
			if err := h.service.SaveAnswer(r.Context(), attemptID, studentID, payload.QuestionID, payload.SelectedOptions); err != nil {
				out.push(errorMessage(err))
				continue
			}
			out.push(outboundMessage[any]{Type: "answerSaved", Payload: answerSaved{QuestionID: payload.QuestionID}})
		case "away":
			var payload awayRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid away payload", Status: http.StatusBadRequest}})
				continue
			}
			res, err := h.service.RegisterAway(r.Context(), attemptID, studentID, payload.Action)
			if err != nil {
				out.push(errorMessage(err))
				continue
			}
			out.push(outboundMessage[any]{Type: "away", Payload: res})
			sealed = res.AutoSubmitted
		case "submit":
			var payload submitRequest
			if len(inbound.Payload) > 0 {
				if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
					out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload", Status: http.StatusBadRequest}})
					continue
				}
			}
			if payload.SubmissionReason == domain.ReasonNone {
				payload.SubmissionReason = domain.ReasonManual
			}
			res, err := h.service.Submit(r.Context(), attemptID, studentID, payload.SubmissionReason)
			if err != nil {
				out.push(errorMessage(err))
				continue
			}
			out.push(outboundMessage[any]{Type: "submitted", Payload: res})
			sealed = true
		default:
			out.push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type", Status: http.StatusBadRequest}})
		}
	}

	close(out.send)
	<-out.done
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "attempt closed"))
}
