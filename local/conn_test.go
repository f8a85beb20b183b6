package local

import (
	"context"
	"errors"
	"testing"
	"time"

	"git.sr.ht/~delthas/polychat/chat"
)

func recv(t *testing.T, m *chat.Mailbox) chat.Event {
	t.Helper()
	done := make(chan chat.Event, 1)
	go func() {
		ev, _ := m.Recv()
		done <- ev
	}()
	select {
	case ev := <-done:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
		return nil
	}
}

func TestNotes(t *testing.T) {
	m := chat.NewMailbox()
	c := New(m)
	c.SendChannelMessage(NotesChannel, "buy milk :tada:")
	ev, ok := recv(t, m).(chat.Message)
	if !ok {
		t.Fatalf("got %T, want chat.Message", ev)
	}
	if ev.Server != ServerName || ev.Channel != NotesChannel || ev.Text != "buy milk 🎉" {
		t.Errorf("got %+v", ev)
	}

	c.SendChannelMessage(ErrorsChannel, "nope")
	if _, ok := recv(t, m).(chat.Error); !ok {
		t.Errorf("sending to the errors channel must fail")
	}
}

func TestNowPlaying(t *testing.T) {
	m := chat.NewMailbox()
	c := New(m).WithSong(func(ctx context.Context) (string, error) {
		return "Song by Artist", nil
	})
	c.HandleCmd(NotesChannel, "np", nil)
	ev, ok := recv(t, m).(chat.Message)
	if !ok || ev.Text != "Song by Artist" || ev.Sender != "np" {
		t.Errorf("got %+v", ev)
	}

	c.WithSong(func(ctx context.Context) (string, error) {
		return "", errors.New("no player")
	})
	c.HandleCmd(NotesChannel, "np", nil)
	if _, ok := recv(t, m).(chat.Error); !ok {
		t.Errorf("a failed lookup must report an error")
	}

	c.HandleCmd(NotesChannel, "unknown", nil)
	if m.Len() != 0 {
		t.Errorf("unknown commands must be ignored")
	}
}

func TestAutocomplete(t *testing.T) {
	c := New(chat.NewMailbox())
	if got, ok := c.Autocomplete("#no"); !ok || got != "#notes" {
		t.Errorf("got %q, %v", got, ok)
	}
}
