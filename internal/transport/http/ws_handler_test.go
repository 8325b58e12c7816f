package http

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"quiz-attempt-service/internal/auth"
	"quiz-attempt-service/internal/domain"

	"github.com/gorilla/websocket"
)

func TestWebSocketAttemptFlow(t *testing.T) {
	env := newTestEnv(t)
	student := env.token(t, "student-1", auth.RoleStudent)

	var started domain.StudentAttempt
	env.do(t, http.MethodPost, "/api/student/quizzes/quiz-1/start", student, nil, &started)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/attempts/" + started.Attempt.ID + "?access_token=" + student
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect the attempt snapshot first.
	_, payload := readNext(conn, t, "attempt")
	if payload == nil {
		t.Fatalf("expected attempt payload, got nil")
	}

	send(t, conn, map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionId": "q1", "selectedOptions": []string{"o3", "o1"}},
	})
	_, saved := readNext(conn, t, "answerSaved")
	if saved["questionId"] != "q1" {
		t.Fatalf("expected q1 saved, got %v", saved)
	}

	send(t, conn, map[string]any{"type": "away", "payload": map[string]any{"action": "end"}})
	_, errPayload := readNext(conn, t, "error")
	if status, _ := errPayload["status"].(float64); int(status) != http.StatusConflict {
		t.Fatalf("expected 409 status for end without start, got %v", errPayload)
	}

	send(t, conn, map[string]any{"type": "shout"})
	readNext(conn, t, "error")

	send(t, conn, map[string]any{"type": "submit"})
	_, submitted := readNext(conn, t, "submitted")
	if score, _ := submitted["score"].(float64); score != 2 {
		t.Fatalf("expected score 2, got %v", submitted)
	}

	// The server closes the channel once the attempt is sealed.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
}

func TestOutboxDropsAfterWriterStops(t *testing.T) {
	out := newOutbox(1)
	close(out.done)

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 5; i++ {
			out.push(outboundMessage[any]{Type: "answerSaved"})
		}
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatalf("push blocked with no writer draining the buffer")
	}
}

func TestWebSocketRejectsForeignAttempt(t *testing.T) {
	env := newTestEnv(t)
	owner := env.token(t, "student-1", auth.RoleStudent)
	other := env.token(t, "student-2", auth.RoleStudent)

	var started domain.StudentAttempt
	env.do(t, http.MethodPost, "/api/student/quizzes/quiz-1/start", owner, nil, &started)

	u := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/attempts/" + started.Attempt.ID + "?access_token=" + other
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected handshake to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 handshake response, got %v", resp)
	}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %v: %v", msg["type"], err)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
