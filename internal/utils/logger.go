package utils

import (
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

// Log 全局结构化日志，Init 之前也可直接使用（默认 Info 级别）
var Log = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      time.DateTime,
})

func Init(level string) {
	Log = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "tower",
	})
	if lvl, err := log.ParseLevel(level); err == nil {
		Log.SetLevel(lvl)
	} else if level != "" {
		Log.Warn("unknown log level, using info", "level", level)
	}

	styles := log.DefaultStyles()
	styles.Levels[log.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Foreground(lipgloss.Color("#888888"))

	styles.Levels[log.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#90EE9080")).
		Foreground(lipgloss.Color("#006400FF")).Bold(true)

	styles.Levels[log.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FFD700FF")).
		Foreground(lipgloss.Color("#000000FF")).Bold(true)

	styles.Levels[log.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FF0000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)

	styles.Levels[log.FatalLevel] = lipgloss.NewStyle().
		SetString("FATAL").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#000000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)

	styles.Keys["match"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#1E90FF"))
	styles.Keys["player"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF8C00"))
	Log.SetStyles(styles)
}
