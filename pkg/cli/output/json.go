package output

import (
	"encoding/json"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warnColor    = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
)

// PrintJSON 缩进输出JSON到标准输出
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Success 成功消息
func Success(format string, args ...any) {
	successColor.Printf("✅ "+format+"\n", args...)
}

// Error 错误消息
func Error(format string, args ...any) {
	errorColor.Printf("❌ "+format+"\n", args...)
}

// Warn 警告消息
func Warn(format string, args ...any) {
	warnColor.Printf("⚠️ "+format+"\n", args...)
}

// Info 提示消息
func Info(format string, args ...any) {
	infoColor.Printf("ℹ️ "+format+"\n", args...)
}
