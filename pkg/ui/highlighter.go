package ui

import (
	"fmt"

	"schedos/pkg/kernel/sched"
	"schedos/pkg/ui/base"

	"github.com/charmbracelet/lipgloss"
)

// EventHighlighter renders scheduler events as aligned, color-coded log
// lines for the event viewport.
type EventHighlighter struct {
	kindStyles map[sched.EventKind]lipgloss.Style
	tickStyle  lipgloss.Style
	nameStyle  lipgloss.Style
	extraStyle lipgloss.Style
}

func NewEventHighlighter() *EventHighlighter {
	mk := func(c lipgloss.Color) lipgloss.Style {
		return lipgloss.NewStyle().Foreground(c).Bold(true)
	}

	return &EventHighlighter{
		kindStyles: map[sched.EventKind]lipgloss.Style{
			sched.EventCreate:      mk(accentColor),
			sched.EventSwitch:      mk(primaryColor),
			sched.EventBlock:       mk(textMuted),
			sched.EventUnblock:     mk(textMuted),
			sched.EventSleep:       mk(secondaryColor),
			sched.EventWake:        mk(secondaryColor),
			sched.EventDonate:      mk(warningColor),
			sched.EventSetPriority: mk(warningColor),
			sched.EventExit:        mk(errorColor),
			sched.EventDestroy:     mk(errorColor),
		},
		tickStyle:  lipgloss.NewStyle().Foreground(textMuted),
		nameStyle:  lipgloss.NewStyle().Foreground(textPrimary),
		extraStyle: lipgloss.NewStyle().Foreground(textMuted),
	}
}

// Highlight formats one event as a single log line.
func (h *EventHighlighter) Highlight(e sched.Event) string {
	kindStyle, ok := h.kindStyles[e.Kind]
	if !ok {
		kindStyle = h.nameStyle
	}

	tick := h.tickStyle.Render(fmt.Sprintf("tick %5d", e.Tick))
	kind := kindStyle.Render(base.PadString(e.Kind.String(), 13))
	name := h.nameStyle.Render(base.PadString(base.TruncateString(e.Name, 16), 17))
	prio := h.extraStyle.Render(fmt.Sprintf("prio %2d", e.Priority))

	line := fmt.Sprintf("%s  %s %s %s", tick, kind, name, prio)
	if e.Detail != "" {
		line += "  " + h.extraStyle.Render(e.Detail)
	}
	return line
}
