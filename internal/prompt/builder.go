// Package prompt turns a user message and prior turns into the ordered,
// provider-agnostic message list sent upstream.
package prompt

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nulzo/streamchat/pkg/api"
)

// DefaultPreamble is the system message synthesized for every request.
const DefaultPreamble = `You are a professional travel planning assistant for Hangzhou. Build detailed Hangzhou itineraries tailored to what the user asks for.

Your responsibilities:
1. Create personalised itineraries from the sights, dates and group size the user selects
2. Give practical advice on transport, accommodation and dining
3. Adjust plans for the weather
4. Recommend local food and cultural experiences
5. Answer any question about travelling in Hangzhou

Reply in a friendly, professional tone with detailed, practical suggestions.`

type Option func(*Builder)

// WithPreamble replaces the system message text.
func WithPreamble(text string) Option {
	return func(b *Builder) {
		b.preamble = text
	}
}

// Forecast is one day of weather appended to the preamble.
type Forecast struct {
	Date          time.Time
	Description   string
	TempMin       float64
	TempMax       float64
	Precipitation float64 // mm
}

// WeatherFunc returns the forecast for the days ahead.
type WeatherFunc func(ctx context.Context) ([]Forecast, error)

// WithWeather appends the forecast from fn to the preamble on every build.
// A failing or empty forecast leaves the preamble as is.
func WithWeather(fn WeatherFunc) Option {
	return func(b *Builder) {
		b.weather = fn
	}
}

type Builder struct {
	preamble string
	weather  WeatherFunc
}

func NewBuilder(opts ...Option) *Builder {
	b := &Builder{preamble: DefaultPreamble}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns [system preamble] + history + [message]. History turns from the
// user keep the user role; every other turn is sent as the assistant. history
// is only read.
func (b *Builder) Build(message string, history []api.ConversationTurn) []api.Message {
	return b.BuildContext(context.Background(), message, history)
}

// BuildContext is Build with ctx passed to the weather lookup.
func (b *Builder) BuildContext(ctx context.Context, message string, history []api.ConversationTurn) []api.Message {
	messages := make([]api.Message, 0, len(history)+2)
	messages = append(messages, api.Message{Role: api.RoleSystem, Content: b.systemText(ctx)})

	for _, turn := range history {
		role := api.RoleAssistant
		if turn.Role == api.RoleUser {
			role = api.RoleUser
		}
		messages = append(messages, api.Message{Role: role, Content: turn.Content})
	}

	return append(messages, api.Message{Role: api.RoleUser, Content: message})
}

func (b *Builder) systemText(ctx context.Context) string {
	if b.weather == nil {
		return b.preamble
	}
	days, err := b.weather(ctx)
	if err != nil {
		return b.preamble
	}
	return b.preamble + FormatForecast(days)
}

// FormatForecast renders days as a preamble section, one line per day:
//
//	Mon (3/4): Light rain, 12.0°C-18.5°C, precipitation 2.4mm
//
// Precipitation is omitted when zero. An empty slice renders as "".
func FormatForecast(days []Forecast) string {
	if len(days) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n\nWeather forecast:\n")
	for _, d := range days {
		fmt.Fprintf(&sb, "%s (%d/%d): %s, %.1f°C-%.1f°C",
			d.Date.Format("Mon"), int(d.Date.Month()), d.Date.Day(), d.Description, d.TempMin, d.TempMax)
		if d.Precipitation > 0 {
			fmt.Fprintf(&sb, ", precipitation %.1fmm", d.Precipitation)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
