// Package tui renders the pipeline board and activity feed in the
// terminal. It owns no pipeline state: every user gesture becomes a
// view-model command, every asynchronous result comes back as an event
// applied on the bubbletea update loop, so the store stays single-writer.
package tui

import (
	"context"
	"fmt"
	"image/color"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/atotto/clipboard"
	"github.com/quayside/reach/internal/domain"
	"github.com/quayside/reach/internal/pipeline"
	"github.com/quayside/reach/internal/timeline"
	"github.com/quayside/reach/internal/viewmodel"
)

// eventMsg carries one settled view-model event back onto the update loop.
type eventMsg struct {
	ev viewmodel.Event
}

// feedFilters lists the prefix filters the filter key cycles through.
var feedFilters = []string{
	timeline.FilterAll,
	"message",
	"recruiter",
	"resume",
	"stage",
	"interview",
	"note",
}

// Model is the bubbletea model for the board and feed views.
type Model struct {
	vm *viewmodel.ViewModel

	ready  bool
	width  int
	height int
	status string

	help help.Model
	keys keyMap
	md   *markdownRenderer

	now             func() time.Time
	urgentAfterDays int
	showStats       bool
	showDetail      bool
	filterIdx       int

	selectedStage int
	selectedRow   int
	feedOffset    int
}

// NewModel constructs a new value for this package.
func NewModel(vm *viewmodel.ViewModel, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		vm:              vm,
		status:          "loading...",
		help:            h,
		keys:            newKeyMap(),
		md:              &markdownRenderer{},
		now:             time.Now,
		urgentAfterDays: 7,
		showStats:       true,
	}
	for idx, filter := range feedFilters {
		if filter == vm.Filter() {
			m.filterIdx = idx
			break
		}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init handles init.
func (m Model) Init() tea.Cmd {
	return m.refreshCmd()
}

// refreshCmd dispatches both refresh commands and batches their effects.
func (m Model) refreshCmd() tea.Cmd {
	effects := m.vm.Dispatch(viewmodel.RefreshPipeline{})
	effects = append(effects, m.vm.Dispatch(viewmodel.RefreshActivities{})...)
	return runEffects(effects)
}

// runEffects wraps view-model effects as commands that feed the resulting
// events back through Update.
func runEffects(effects []viewmodel.Effect) tea.Cmd {
	cmds := make([]tea.Cmd, 0, len(effects))
	for _, effect := range effects {
		effect := effect
		cmds = append(cmds, func() tea.Msg {
			return eventMsg{ev: effect(context.Background())}
		})
	}
	switch len(cmds) {
	case 0:
		return nil
	case 1:
		return cmds[0]
	default:
		return tea.Batch(cmds...)
	}
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case eventMsg:
		return m.applyEvent(msg.ev)

	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

// applyEvent feeds one asynchronous result into the view model and
// derives the status line from what settled.
func (m Model) applyEvent(ev viewmodel.Event) (tea.Model, tea.Cmd) {
	m.vm.Apply(ev)
	switch ev := ev.(type) {
	case viewmodel.PipelineLoaded:
		if ev.Err == nil && (m.status == "loading..." || m.status == "refreshing...") {
			m.status = "ready"
		}
		m.clampSelection()

	case viewmodel.ActivitiesLoaded:
		if ev.Err == nil {
			m.feedOffset = 0
		}

	case viewmodel.MoveSettled:
		if banner, ok := m.vm.Banner(); ok {
			m.status = banner.Message
		} else if m.vm.Phase() == pipeline.PhaseIdle {
			m.status = "move confirmed"
		}
		m.clampSelection()
	}
	return m, nil
}

// handleKey routes one key press. While a drag is active the movement
// keys steer the hover target instead of the cursor.
func (m Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.refresh):
		m.status = "refreshing..."
		return m, m.refreshCmd()
	}

	if m.showDetail {
		if key.Matches(msg, m.keys.cancel) || key.Matches(msg, m.keys.itemInfo) {
			m.showDetail = false
		}
		return m, nil
	}

	dragging := m.vm.Phase() == pipeline.PhaseDragging

	switch {
	case key.Matches(msg, m.keys.moveLeft):
		if dragging {
			m.hoverStep(-1)
		} else if m.selectedStage > 0 {
			m.selectedStage--
			m.selectedRow = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.moveRight):
		if dragging {
			m.hoverStep(1)
		} else if m.selectedStage < len(domain.Stages())-1 {
			m.selectedStage++
			m.selectedRow = 0
		}
		return m, nil

	case key.Matches(msg, m.keys.moveUp):
		if !dragging && m.selectedRow > 0 {
			m.selectedRow--
		}
		return m, nil

	case key.Matches(msg, m.keys.moveDown):
		if !dragging {
			items := m.vm.Store().ItemsForStage(domain.Stages()[m.selectedStage])
			if m.selectedRow < len(items)-1 {
				m.selectedRow++
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.grab):
		if dragging {
			return m.dropGrabbed()
		}
		item, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		m.vm.Dispatch(viewmodel.StartDrag{ItemID: item.ID})
		if m.vm.Phase() == pipeline.PhaseDragging {
			m.status = "grabbed " + item.ContactName
		}
		return m, nil

	case key.Matches(msg, m.keys.cancel):
		if dragging {
			m.vm.Dispatch(viewmodel.CancelDrag{})
			m.status = "drag cancelled"
		} else if _, ok := m.vm.Banner(); ok {
			m.vm.Dispatch(viewmodel.DismissBanner{})
			m.status = "ready"
		}
		return m, nil

	case key.Matches(msg, m.keys.retry):
		if !m.vm.CanRetry() {
			return m, nil
		}
		effects := m.vm.Dispatch(viewmodel.RetryMove{})
		m.status = "retrying move..."
		return m, runEffects(effects)

	case key.Matches(msg, m.keys.dismiss):
		if _, ok := m.vm.Banner(); ok {
			m.vm.Dispatch(viewmodel.DismissBanner{})
			m.status = "ready"
		}
		return m, nil

	case key.Matches(msg, m.keys.cycleFilter):
		m.filterIdx = (m.filterIdx + 1) % len(feedFilters)
		m.vm.Dispatch(viewmodel.SetFilter{Filter: feedFilters[m.filterIdx]})
		m.feedOffset = 0
		m.status = "filter: " + feedFilters[m.filterIdx]
		return m, nil

	case key.Matches(msg, m.keys.itemInfo):
		if _, ok := m.selectedItem(); ok {
			m.showDetail = true
		}
		return m, nil

	case key.Matches(msg, m.keys.yank):
		item, ok := m.selectedItem()
		if !ok {
			return m, nil
		}
		text := item.ContactName
		if item.Company != "" {
			text += " (" + item.Company + ")"
		}
		if err := clipboard.WriteAll(text); err != nil {
			m.status = "copy failed: " + err.Error()
		} else {
			m.status = "copied " + item.ContactName
		}
		return m, nil

	case key.Matches(msg, m.keys.toggleStats):
		m.showStats = !m.showStats
		return m, nil

	default:
		return m, nil
	}
}

// dropGrabbed releases the active drag onto the hovered stage and keeps
// the cursor on the moved item.
func (m Model) dropGrabbed() (tea.Model, tea.Cmd) {
	session := m.vm.DragSession()
	target := session.Hover
	effects := m.vm.Dispatch(viewmodel.Drop{Stage: target})
	if target == session.Origin {
		m.status = "dropped back on " + target.Label()
	} else {
		m.status = fmt.Sprintf("moving to %s...", target.Label())
	}
	m.followItem(session.ItemID)
	return m, runEffects(effects)
}

// hoverStep moves the drop-target highlight one stage left or right.
func (m *Model) hoverStep(delta int) {
	stages := domain.Stages()
	idx := clamp(m.vm.DragSession().Hover.Index()+delta, 0, len(stages)-1)
	m.vm.Dispatch(viewmodel.Hover{Stage: stages[idx]})
}

// handleMouseWheel scrolls the activity feed.
func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	switch msg.Button {
	case tea.MouseWheelUp:
		if m.feedOffset > 0 {
			m.feedOffset--
		}
	case tea.MouseWheelDown:
		m.feedOffset++
	}
	return m, nil
}

// selectedItem returns the item under the cursor.
func (m Model) selectedItem() (domain.PipelineItem, bool) {
	items := m.vm.Store().ItemsForStage(domain.Stages()[clamp(m.selectedStage, 0, len(domain.Stages())-1)])
	if len(items) == 0 {
		return domain.PipelineItem{}, false
	}
	return items[clamp(m.selectedRow, 0, len(items)-1)], true
}

// followItem moves the cursor to wherever the item currently sits.
func (m *Model) followItem(itemID string) {
	for stageIdx, stage := range domain.Stages() {
		for rowIdx, item := range m.vm.Store().ItemsForStage(stage) {
			if item.ID == itemID {
				m.selectedStage = stageIdx
				m.selectedRow = rowIdx
				return
			}
		}
	}
}

// clampSelection keeps the cursor inside the loaded board.
func (m *Model) clampSelection() {
	stages := domain.Stages()
	m.selectedStage = clamp(m.selectedStage, 0, len(stages)-1)
	items := m.vm.Store().ItemsForStage(stages[m.selectedStage])
	m.selectedRow = clamp(m.selectedRow, 0, max(0, len(items)-1))
}

// View handles view.
func (m Model) View() tea.View {
	if !m.ready {
		v := tea.NewView("loading...")
		v.MouseMode = tea.MouseModeCellMotion
		v.AltScreen = true
		return v
	}

	accent := lipgloss.Color("62")
	muted := lipgloss.Color("241")
	dim := lipgloss.Color("239")

	header := m.renderHeader(accent, muted)
	helpLine := m.renderHelpLine(muted, dim)
	banner := m.renderBanner()
	stats := ""
	if m.showStats {
		stats = m.renderStats(muted)
	}

	fixed := lipgloss.Height(header) + lipgloss.Height(helpLine)
	if banner != "" {
		fixed += lipgloss.Height(banner)
	}
	if stats != "" {
		fixed += lipgloss.Height(stats)
	}
	bodyHeight := max(4, m.height-fixed)
	boardHeight := max(3, bodyHeight*3/5)
	feedHeight := max(1, bodyHeight-boardHeight)

	var body string
	if m.showDetail {
		body = fitLines(m.renderDetail(), bodyHeight)
	} else {
		board := m.renderBoard(accent, muted, dim, boardHeight)
		feed := m.renderFeed(muted, dim, feedHeight)
		body = fitLines(board, boardHeight) + "\n" + fitLines(feed, feedHeight)
	}

	sections := []string{header, body}
	if banner != "" {
		sections = append(sections, banner)
	}
	if stats != "" {
		sections = append(sections, stats)
	}
	sections = append(sections, helpLine)

	v := tea.NewView(strings.Join(sections, "\n"))
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

// renderHeader renders the title and status line.
func (m Model) renderHeader(accent, muted color.Color) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(muted)

	parts := []string{titleStyle.Render("reach"), statusStyle.Render(m.status)}
	if phase := m.vm.Phase(); phase != pipeline.PhaseIdle {
		phaseStyle := lipgloss.NewStyle().Foreground(accent)
		parts = append(parts, phaseStyle.Render(string(phase)))
	}
	if notice := m.vm.LoadNotice(); notice != "" {
		warn := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
		parts = append(parts, warn.Render(notice))
	}
	return truncate(strings.Join(parts, "  "), max(1, m.width))
}

// renderBoard renders the funnel columns.
func (m Model) renderBoard(accent, muted, dim color.Color, height int) string {
	board := m.vm.Board()
	dragging := m.vm.Phase() == pipeline.PhaseDragging
	session := m.vm.DragSession()
	now := m.now()

	colWidth := max(14, m.width/len(board))
	// Width covers border and padding, so text gets colWidth-4 columns.
	textWidth := max(1, colWidth-4)
	baseColStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(dim).
		Padding(0, 1).
		Width(colWidth)
	selColStyle := baseColStyle.BorderForeground(accent)
	hoverColStyle := baseColStyle.BorderForeground(lipgloss.Color("212"))
	colTitle := lipgloss.NewStyle().Bold(true).Foreground(accent)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	selectedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	grabbedStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true).Underline(true)
	subStyle := lipgloss.NewStyle().Foreground(muted)
	urgentStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))

	innerHeight := max(2, height-2)
	columnViews := make([]string, 0, len(board))
	for colIdx, column := range board {
		lines := []string{colTitle.Render(truncate(fmt.Sprintf("%s (%d)", column.Stage.Label(), len(column.Items)), textWidth))}

		if len(column.Items) == 0 {
			lines = append(lines, emptyStyle.Render("(empty)"))
		}
		selectedStart, selectedEnd := -1, -1
		for rowIdx, item := range column.Items {
			selected := !dragging && colIdx == m.selectedStage && rowIdx == m.selectedRow
			grabbed := dragging && item.ID == session.ItemID

			prefix := "  "
			if selected || grabbed {
				prefix = "│ "
			}
			name := truncate(prefix+item.ContactName, textWidth)
			switch {
			case grabbed:
				name = grabbedStyle.Render(name)
			case selected:
				name = selectedStyle.Render(name)
			}

			sub := fmt.Sprintf("%dd", item.DaysInStage(now))
			if item.Company != "" {
				sub += " · " + item.Company
			}
			sub = truncate(prefix+sub, textWidth)
			if item.Urgent(now, m.urgentAfterDays) {
				sub = urgentStyle.Render(sub)
			} else {
				sub = subStyle.Render(sub)
			}

			rowStart := len(lines)
			lines = append(lines, name, sub)
			if selected || grabbed {
				selectedStart, selectedEnd = rowStart, len(lines)-1
			}
		}

		// keep the cursor row inside the visible window under the title
		window := max(1, innerHeight-1)
		body := lines[1:]
		scrollTop := 0
		if selectedStart > 0 {
			selStart, selEnd := selectedStart-1, selectedEnd-1
			if selEnd >= window {
				scrollTop = selEnd - window + 1
			}
			if selStart < scrollTop {
				scrollTop = selStart
			}
		}
		scrollTop = clamp(scrollTop, 0, max(0, len(body)-window))
		if len(body) > window {
			body = body[scrollTop : scrollTop+window]
		}
		content := fitLines(strings.Join(append(lines[:1:1], body...), "\n"), innerHeight)

		style := baseColStyle
		switch {
		case dragging && column.Stage == session.Hover:
			style = hoverColStyle
		case !dragging && colIdx == m.selectedStage:
			style = selColStyle
		}
		columnViews = append(columnViews, style.Render(content))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top, columnViews...)
}

// renderFeed renders the date-grouped activity timeline.
func (m Model) renderFeed(muted, dim color.Color, height int) string {
	headingStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dateStyle := lipgloss.NewStyle().Bold(true).Foreground(muted)
	typeStyle := lipgloss.NewStyle().Foreground(dim)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("203"))

	heading := "activity"
	if filter := m.vm.Filter(); filter != timeline.FilterAll {
		heading += " (filter: " + filter + ")"
	}
	lines := []string{headingStyle.Render(heading)}
	if notice := m.vm.FeedNotice(); notice != "" {
		lines = append(lines, warnStyle.Render(notice))
	}

	var feed []string
	for _, group := range m.vm.Timeline() {
		feed = append(feed, dateStyle.Render(group.Date.Format("Mon Jan 2")))
		for _, activity := range group.Activities {
			line := fmt.Sprintf("  %s %s %s",
				activity.CreatedAt.Local().Format("15:04"),
				typeStyle.Render(string(activity.Type)),
				activity.Description)
			feed = append(feed, truncate(line, max(1, m.width-2)))
		}
	}
	if len(feed) == 0 {
		feed = []string{typeStyle.Render("(no activity)")}
	}

	window := max(1, height-len(lines))
	offset := clamp(m.feedOffset, 0, max(0, len(feed)-window))
	if len(feed) > window {
		feed = feed[offset:min(offset+window, len(feed))]
	}
	return strings.Join(append(lines, feed...), "\n")
}

// renderDetail renders the contact detail pane for the item under the
// cursor.
func (m Model) renderDetail() string {
	item, ok := m.selectedItem()
	if !ok {
		return "(no contact selected)"
	}
	now := m.now()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", item.ContactName)
	if item.Company != "" {
		fmt.Fprintf(&b, "- Company: %s\n", item.Company)
	}
	fmt.Fprintf(&b, "- Stage: %s\n", item.Stage.Label())
	fmt.Fprintf(&b, "- Days in stage: %d\n", item.DaysInStage(now))
	if item.LastActivityAt != nil {
		fmt.Fprintf(&b, "- Last activity: %s\n", item.LastActivityAt.Local().Format("2006-01-02 15:04"))
	}

	related := make([]domain.Activity, 0, 10)
	for _, activity := range m.vm.Activities() {
		if activity.ContactID == item.ContactID {
			related = append(related, activity)
		}
		if len(related) == 10 {
			break
		}
	}
	if len(related) > 0 {
		b.WriteString("\n## Recent activity\n\n")
		for _, activity := range related {
			fmt.Fprintf(&b, "- %s `%s` %s\n",
				activity.CreatedAt.Local().Format("Jan 2 15:04"),
				activity.Type,
				activity.Description)
		}
	}
	b.WriteString("\npress esc to close\n")

	return m.md.render(b.String(), max(1, m.width-4))
}

// renderBanner renders the move-failure banner, if any.
func (m Model) renderBanner() string {
	banner, ok := m.vm.Banner()
	if !ok {
		return ""
	}
	tint := lipgloss.Color("203")
	hint := "press x to dismiss"
	if banner.Retryable {
		hint = "press r to retry • x to dismiss"
	}
	if banner.Kind == pipeline.FailureInvalidTransition {
		tint = lipgloss.Color("178")
	}
	style := lipgloss.NewStyle().Bold(true).Foreground(tint)
	hintStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	return truncate(style.Render(banner.Message)+"  "+hintStyle.Render(hint), max(1, m.width))
}

// renderStats renders the session rollup plus the server's all-time
// counts when loaded.
func (m Model) renderStats(muted color.Color) string {
	style := lipgloss.NewStyle().Foreground(muted)
	local := m.vm.Stats()
	line := fmt.Sprintf("session: %d activities • %d messages • %d responses • %d interviews",
		local.Total, local.MessagesSent, local.Responses, local.Interviews)
	if server, ok := m.vm.ServerCounts(); ok {
		line += fmt.Sprintf("  |  all time: %d activities • %d messages • %d responses • %d interviews",
			server.Total, server.MessagesSent, server.Responses, server.Interviews)
	}
	return style.Render(truncate(line, max(1, m.width)))
}

// renderHelpLine renders the bottom help bubble.
func (m Model) renderHelpLine(muted, dim color.Color) string {
	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	return lipgloss.NewStyle().
		Foreground(muted).
		BorderTop(true).
		BorderForeground(dim).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
}

// clamp clamps the requested operation.
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// truncate shortens a string to at most max runes.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= max {
		return s
	}
	if max <= 1 {
		return string(rs[:max])
	}
	return string(rs[:max-1]) + "…"
}

// fitLines fits lines.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}
