package utils

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	log1 "github.com/charmbracelet/log"
)

// Log 全局日志，未调用 Init 时使用默认实例
var Log = newLogger(os.Stderr)

func newLogger(w io.Writer) *log1.Logger {
	return log1.NewWithOptions(w, log1.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "voice-match",
	})
}

// Init 根据配置设置日志级别并应用彩色样式
func Init(level string) {
	Log = newLogger(os.Stderr)
	if lvl, err := log1.ParseLevel(level); err == nil {
		Log.SetLevel(lvl)
	}

	styles := log1.DefaultStyles()
	styles.Levels[log1.DebugLevel] = lipgloss.NewStyle().
		SetString("DEBUG").
		Padding(0, 1, 0, 1).
		Foreground(lipgloss.Color("#808080FF"))

	styles.Levels[log1.InfoLevel] = lipgloss.NewStyle().
		SetString("INFO🌟").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#90EE9080")).
		Foreground(lipgloss.Color("#006400FF")).Bold(true)

	styles.Levels[log1.WarnLevel] = lipgloss.NewStyle().
		SetString("WARN").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FFA500FF")).
		Foreground(lipgloss.Color("#000000FF")).Bold(true)

	styles.Levels[log1.ErrorLevel] = lipgloss.NewStyle().
		SetString("ERROR🔥").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#FF0000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)

	styles.Levels[log1.FatalLevel] = lipgloss.NewStyle().
		SetString("FATAL⚡️").
		Padding(0, 1, 0, 1).
		Background(lipgloss.Color("#000000FF")).
		Foreground(lipgloss.Color("#00FFFF00")).Bold(true)

	styles.Keys["roomId"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#1E90FF"))
	styles.Keys["userId"] = lipgloss.NewStyle().Foreground(lipgloss.Color("#DA70D6"))
	Log.SetStyles(styles)
}

// SetOutput 替换输出目标，测试里用来收集日志
func SetOutput(w io.Writer) {
	Log = newLogger(w)
}
