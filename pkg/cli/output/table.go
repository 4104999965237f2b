package output

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Table 终端对齐表格，列宽在渲染时按内容计算
type Table struct {
	headers []string
	rows    [][]string
}

func NewTable(headers []string) *Table {
	return &Table{headers: headers}
}

func (t *Table) AddRow(row []string) {
	t.rows = append(t.rows, row)
}

// Render 输出表头、分隔线和所有数据行
func (t *Table) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	headerColor := color.New(color.FgCyan, color.Bold)
	for i, h := range t.headers {
		if i > 0 {
			fmt.Print("  ")
		}
		headerColor.Printf("%-*s", widths[i], h)
	}
	fmt.Println()

	for i, w := range widths {
		if i > 0 {
			fmt.Print("  ")
		}
		fmt.Print(strings.Repeat("-", w))
	}
	fmt.Println()

	for _, row := range t.rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if i > 0 {
				fmt.Print("  ")
			}
			fmt.Printf("%-*s", widths[i], cell)
		}
		fmt.Println()
	}
}

// ColorState 按任务状态着色状态名
func ColorState(name string) string {
	switch name {
	case "active":
		return color.GreenString(name)
	case "finished":
		return color.CyanString(name)
	case "failed", "killed":
		return color.RedString(name)
	case "suspended", "waiting":
		return color.YellowString(name)
	default:
		return name
	}
}
