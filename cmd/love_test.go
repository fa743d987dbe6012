package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jfmyers9/scrobbler/internal/daemon"
)

type fakeMessenger struct {
	channel string
	text    string
	err     error
}

func (f *fakeMessenger) Messages(ctx context.Context, channel string) (<-chan string, error) {
	return nil, errors.New("not supported")
}

func (f *fakeMessenger) SendMessage(ctx context.Context, channel, text string) error {
	f.channel = channel
	f.text = text
	return f.err
}

func TestSendLove(t *testing.T) {
	m := &fakeMessenger{}
	err := sendLove(context.Background(), m, "scrobbler", daemon.LoveCommand{On: true, Artist: "Cher", Title: "Believe"})
	if err != nil {
		t.Fatalf("sendLove: %v", err)
	}
	if m.channel != "scrobbler" || m.text != "love\tCher\tBelieve" {
		t.Errorf("sent %q on %q", m.text, m.channel)
	}
}

func TestSendLoveErrors(t *testing.T) {
	if err := sendLove(context.Background(), &fakeMessenger{}, "", daemon.LoveCommand{On: true}); err == nil {
		t.Error("expected error without a channel")
	}

	m := &fakeMessenger{err: errors.New("nobody is subscribed to this channel")}
	err := sendLove(context.Background(), m, "scrobbler", daemon.LoveCommand{})
	if err == nil || !strings.Contains(err.Error(), "daemon running") {
		t.Errorf("expected hint about the daemon, got %v", err)
	}
}
