package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/carwash-booking/internal/models"
)

func TestPublishReachesConnectedCustomer(t *testing.T) {
	reg := NewWSRegistry(nil)
	registered := make(chan struct{})
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		reg.Add(r.URL.Query().Get("id"), conn)
		close(registered)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?id=c1"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	<-registered

	ev := models.BookingEvent{ID: "e1", Type: models.EventBookingStatus, BookingID: "b1", CustomerID: "c1", WorkerID: "wrk-1", WorkerUserID: "usr-offline", Status: models.StatusConfirmed}
	if err := reg.Publish(context.Background(), ev); err != nil {
		t.Fatalf("offline worker must not fail publish: %v", err)
	}

	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.BookingEvent
	if err := client.ReadJSON(&got); err != nil {
		t.Fatal(err)
	}
	if got.BookingID != "b1" || got.Status != models.StatusConfirmed {
		t.Fatalf("unexpected event %+v", got)
	}
}

func TestSendWithoutSession(t *testing.T) {
	reg := NewWSRegistry(nil)
	if err := reg.Send("nobody", models.BookingEvent{}); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestPublishReachesWorkerByUserID(t *testing.T) {
	reg := NewWSRegistry(nil)
	registered := make(chan string, 1)
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		id := r.URL.Query().Get("id")
		reg.Add(id, conn)
		registered <- id
	}))
	defer srv.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/?id=usr-w1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	<-registered

	ev := models.BookingEvent{ID: "e2", Type: models.EventBookingCreated, BookingID: "b2", CustomerID: "c1", WorkerID: "wrk-1", WorkerUserID: "usr-w1", Status: models.StatusPending}
	if err := reg.Publish(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	_ = client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.BookingEvent
	if err := client.ReadJSON(&got); err != nil {
		t.Fatalf("worker session got nothing: %v", err)
	}
	if got.BookingID != "b2" {
		t.Fatalf("unexpected event %+v", got)
	}
	if err := reg.Send("wrk-1", ev); !errors.Is(err, ErrNoSession) {
		t.Fatalf("worker record id must not hold a session, got %v", err)
	}
}
