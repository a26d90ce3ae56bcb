package chatui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/pkg/api"
)

// startStream runs one answer in the background and returns the channel its
// messages arrive on. The last message is always a streamDoneMsg.
func startStream(ctx context.Context, svc gateway.Service, message string, history []api.ConversationTurn, gen uint64) <-chan tea.Msg {
	events := make(chan tea.Msg, 64)
	go func() {
		defer close(events)
		for fragment, err := range svc.Stream(ctx, message, history) {
			if err != nil {
				events <- streamDoneMsg{Err: err, Gen: gen}
				return
			}
			select {
			case events <- fragmentMsg{Text: fragment, Gen: gen}:
			case <-ctx.Done():
				events <- streamDoneMsg{Err: api.Canceled(ctx.Err()), Gen: gen}
				return
			}
		}
		events <- streamDoneMsg{Gen: gen}
	}()
	return events
}

// waitForEvent reads the next message of a running stream.
func waitForEvent(events <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return nil
		}
		return msg
	}
}
