package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/echobox/internal/domain"
	"github.com/Strob0t/echobox/internal/domain/reply"
	"github.com/Strob0t/echobox/internal/domain/stream"
)

func TestReplyService_CreatePersistsThenPublishes(t *testing.T) {
	store := &memStore{}
	bus := NewSessionBus()
	var got []stream.Message
	defer bus.Subscribe("sess_abc", func(m stream.Message) {
		if len(store.replies) != 1 {
			t.Error("reply must be stored before it is published")
		}
		got = append(got, m)
	})()

	svc := NewReplyService(store, bus)
	r, err := svc.Create(context.Background(), reply.CreateRequest{ProjectKeyID: "pk_1", SessionID: "sess_abc", Text: "Thanks, fixed!"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].MessageID != r.ID || got[0].Text != "Thanks, fixed!" {
		t.Fatalf("unexpected published messages %+v", got)
	}
}

func TestReplyService_CreateWithoutSubscribers(t *testing.T) {
	store := &memStore{}
	svc := NewReplyService(store, NewSessionBus())
	if _, err := svc.Create(context.Background(), reply.CreateRequest{ProjectKeyID: "pk_1", SessionID: "s", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	hist, err := svc.History(context.Background(), "s")
	if err != nil || len(hist) != 1 {
		t.Fatalf("expected stored reply in history, got %v %v", hist, err)
	}
}

func TestReplyService_CreateValidation(t *testing.T) {
	svc := NewReplyService(&memStore{}, NewSessionBus())
	_, err := svc.Create(context.Background(), reply.CreateRequest{ProjectKeyID: "pk_1", SessionID: "s"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestReplyService_HistoryRequiresSession(t *testing.T) {
	svc := NewReplyService(&memStore{}, NewSessionBus())
	if _, err := svc.History(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
