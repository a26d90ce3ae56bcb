// Command chat is an interactive terminal client. It streams answers from the
// configured provider using the same settings file as the relay.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"

	"github.com/nulzo/streamchat/internal/chatui"
	"github.com/nulzo/streamchat/internal/cli"
	"github.com/nulzo/streamchat/internal/gateway"
	"github.com/nulzo/streamchat/internal/httpclient"
	"github.com/nulzo/streamchat/internal/platform/logger"
	"github.com/nulzo/streamchat/internal/settings"
)

func main() {
	_ = godotenv.Load()

	path := flag.String("settings", "settings.json", "Path to the settings file")
	markdown := flag.Bool("markdown", true, "Render each finished answer as markdown")
	logLevel := flag.String("log-level", "error", "Log level for diagnostics on stderr")
	flag.Parse()

	// stderr keeps diagnostics out of the terminal program's frame
	logCfg := logger.DefaultConfig()
	logCfg.Level = *logLevel
	log := logger.New(logCfg, zapcore.Lock(os.Stderr))
	defer func() { _ = log.Sync() }()

	store := settings.NewFileStore(*path)
	service := gateway.NewService(store,
		gateway.WithLogger(log),
		gateway.WithHTTPClient(httpclient.NewClient(30*time.Second, 120*time.Second)),
		gateway.WithoutBreaker(),
	)

	model := chatui.New(chatui.Deps{
		Service:  service,
		Settings: store,
		Markdown: *markdown,
	})
	if _, err := tea.NewProgram(model).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", cli.CrossMark(), err)
		os.Exit(1)
	}
}
