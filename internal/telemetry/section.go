package telemetry

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("15"))

	noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Console печатает сообщения для человека, читающего лог CI.
//
// Стили применяются только если вывод — терминал.
type Console struct {
	w      io.Writer
	styled bool
	now    func() time.Time
}

// NewConsole создаёт Console поверх w.
func NewConsole(w io.Writer) *Console {
	return &Console{
		w:      w,
		styled: IsTerminal(w),
		now:    time.Now,
	}
}

// Section печатает баннер начала стадии:
//
//	[2016-01-02T15:04:05Z] >>>>>>>>>>>>>> INSTALL STAGE
func (c *Console) Section(name string) {
	ts := c.now().UTC().Format(time.RFC3339)
	line := fmt.Sprintf("[%s] >>>>>>>>>>>>>> %s STAGE", ts, strings.ToUpper(name))
	fmt.Fprintf(c.w, "\n%s\n\n", c.render(bannerStyle, line))
}

// Notice печатает заметное предупреждение (жёлтым).
func (c *Console) Notice(format string, args ...any) {
	fmt.Fprintln(c.w, c.render(noticeStyle, fmt.Sprintf(format, args...)))
}

// Failure печатает сообщение об ошибке (красным).
func (c *Console) Failure(format string, args ...any) {
	fmt.Fprintln(c.w, c.render(failStyle, fmt.Sprintf(format, args...)))
}

// Writer возвращает writer для вывода команд.
func (c *Console) Writer() io.Writer {
	return c.w
}

func (c *Console) render(style lipgloss.Style, s string) string {
	if !c.styled {
		return s
	}
	return style.Render(s)
}
