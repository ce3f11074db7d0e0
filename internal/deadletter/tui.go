// Package deadletter is an interactive terminal inspector for batches parked
// in the queue's dead-letter state.
package deadletter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/jobintel/internal/model"
)

// Store is the queue surface the inspector needs.
type Store interface {
	DeadLetters(ctx context.Context, limit int) ([]model.DeadLetter, error)
	Requeue(ctx context.Context, id string) error
}

// Lines per item in the list view (id line + error line + blank separator).
const itemHeight = 3

type viewState int

const (
	viewList viewState = iota
	viewDetail
)

var (
	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("39"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Foreground(lipgloss.Color("39"))

	statusBarStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(lipgloss.Color("252")).
			Background(lipgloss.Color("236"))

	itemTitleStyle    = lipgloss.NewStyle().Bold(true)
	itemSubtitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	selectedTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("24"))

	selectedSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("24"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Width(12)

	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dividerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

type lettersLoadedMsg struct {
	letters []model.DeadLetter
	err     error
}

type requeuedMsg struct {
	id  string
	err error
}

type inspector struct {
	store Store
	limit int

	letters []model.DeadLetter
	cursor  int
	list    viewport.Model
	detail  viewport.Model
	view    viewState
	width   int
	height  int
	ready   bool
	loading bool
	status  string
}

func newInspector(store Store, limit int) inspector {
	return inspector{store: store, limit: limit, loading: true}
}

func (m inspector) Init() tea.Cmd {
	return m.loadCmd()
}

func (m inspector) loadCmd() tea.Cmd {
	store, limit := m.store, m.limit
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		letters, err := store.DeadLetters(ctx, limit)
		return lettersLoadedMsg{letters: letters, err: err}
	}
}

func (m inspector) requeueCmd(id string) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return requeuedMsg{id: id, err: store.Requeue(ctx, id)}
	}
}

func (m inspector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.recalcLayout()
		return m, nil

	case lettersLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.status = fmt.Sprintf("load failed: %v", msg.err)
			return m, nil
		}
		m.letters = msg.letters
		m.cursor = clamp(m.cursor, 0, max(len(m.letters)-1, 0))
		m.recalcContent()
		return m, nil

	case requeuedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("requeue %s failed: %v", msg.id, msg.err)
			return m, nil
		}
		m.removeLetter(msg.id)
		m.status = "requeued " + msg.id
		m.view = viewList
		m.recalcContent()
		return m, nil

	case tea.KeyMsg:
		if m.view == viewDetail {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m inspector) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "up", "k":
		m.cursor = clamp(m.cursor-1, 0, max(len(m.letters)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "down", "j":
		m.cursor = clamp(m.cursor+1, 0, max(len(m.letters)-1, 0))
		m.recalcContent()
		m.ensureCursorVisible()
		return m, nil
	case "enter":
		if len(m.letters) == 0 {
			return m, nil
		}
		m.view = viewDetail
		m.detail = viewport.New(max(m.width-4, 20), max(m.height-4, 5))
		m.detail.SetContent(m.renderDetail(m.letters[m.cursor]))
		return m, nil
	case "r":
		return m.requeueSelected()
	case "g":
		m.loading = true
		m.status = ""
		return m, m.loadCmd()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m inspector) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "esc", "backspace":
		m.view = viewList
		return m, nil
	case "r":
		return m.requeueSelected()
	}

	var cmd tea.Cmd
	m.detail, cmd = m.detail.Update(msg)
	return m, cmd
}

func (m inspector) requeueSelected() (tea.Model, tea.Cmd) {
	if len(m.letters) == 0 {
		return m, nil
	}
	id := m.letters[m.cursor].ID
	m.status = "requeueing " + id + "..."
	return m, m.requeueCmd(id)
}

func (m *inspector) removeLetter(id string) {
	for i, dl := range m.letters {
		if dl.ID == id {
			m.letters = append(m.letters[:i:i], m.letters[i+1:]...)
			break
		}
	}
	m.cursor = clamp(m.cursor, 0, max(len(m.letters)-1, 0))
}

func (m *inspector) ensureCursorVisible() {
	top := m.cursor * itemHeight
	bottom := top + itemHeight - 1
	if top < m.list.YOffset {
		m.list.SetYOffset(top)
	} else if bottom >= m.list.YOffset+m.list.Height {
		m.list.SetYOffset(bottom - m.list.Height + 1)
	}
}

func (m *inspector) recalcLayout() {
	// Header (1) + border (2) + status bar (1).
	w, h := max(m.width-2, 20), max(m.height-4, 5)
	if !m.ready {
		m.list = viewport.New(w, h)
		m.ready = true
	} else {
		m.list.Width, m.list.Height = w, h
	}
	if m.view == viewDetail && len(m.letters) > 0 {
		m.detail.Width, m.detail.Height = max(m.width-4, 20), h
		m.detail.SetContent(m.renderDetail(m.letters[m.cursor]))
	}
	m.recalcContent()
}

func (m *inspector) recalcContent() {
	m.list.SetContent(renderLetters(m.letters, m.cursor))
}

func (m inspector) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.view == viewDetail {
		return m.viewDetail()
	}

	header := headerStyle.Render(fmt.Sprintf("Dead letters (%d)", len(m.letters)))
	if m.loading {
		header += "  (loading...)"
	}
	body := borderStyle.Width(m.list.Width).Render(m.list.View())
	return header + "\n" + body + "\n" + m.statusBar(" ↑/↓ cursor  enter detail  r requeue  g reload  q quit")
}

func (m inspector) viewDetail() string {
	header := headerStyle.Render("Batch detail")
	body := borderStyle.Width(m.width - 2).Render(m.detail.View())
	return header + "\n" + body + "\n" + m.statusBar(" r requeue  esc back  ↑/↓ scroll  q quit")
}

func (m inspector) statusBar(keys string) string {
	text := keys
	if m.status != "" {
		text = " " + m.status + "   " + keys
	}
	return statusBarStyle.Width(m.width).Render(text)
}

func (m inspector) renderDetail(dl model.DeadLetter) string {
	var b strings.Builder
	field := func(label, value string) {
		b.WriteString(labelStyle.Render(label))
		b.WriteString(value)
		b.WriteByte('\n')
	}

	field("Batch", dl.ID)
	field("Source", dl.Batch.Source)
	field("Jobs", fmt.Sprint(len(dl.Batch.Jobs)))
	field("Attempts", fmt.Sprint(dl.Attempts))
	if !dl.Batch.FetchedAt.IsZero() {
		field("Fetched", dl.Batch.FetchedAt.UTC().Format(time.RFC3339))
	}
	if !dl.FailedAt.IsZero() {
		field("Failed", dl.FailedAt.UTC().Format(time.RFC3339))
	}
	b.WriteByte('\n')
	b.WriteString(errorStyle.Render(dl.LastError))
	b.WriteString("\n\n")

	width := max(m.width-8, 20)
	b.WriteString(dividerStyle.Render("── Jobs "+strings.Repeat("─", max(width-8, 3))) + "\n")
	for _, j := range dl.Batch.Jobs {
		line := "  • " + j.Title
		if j.Company != "" {
			line += " · " + j.Company
		}
		b.WriteString(line + "\n")
		b.WriteString(itemSubtitleStyle.Render("    "+j.URL) + "\n")
	}
	return b.String()
}

func renderLetters(letters []model.DeadLetter, cursor int) string {
	if len(letters) == 0 {
		return "  (no dead letters)"
	}

	var b strings.Builder
	for i, dl := range letters {
		titleSt, subtitleSt, prefix := itemTitleStyle, itemSubtitleStyle, "  "
		if i == cursor {
			titleSt, subtitleSt, prefix = selectedTitleStyle, selectedSubtitleStyle, "> "
		}

		failed := "n/a"
		if !dl.FailedAt.IsZero() {
			failed = dl.FailedAt.UTC().Format("2006-01-02 15:04")
		}
		b.WriteString(prefix)
		b.WriteString(titleSt.Render(fmt.Sprintf("%s · %s · %d jobs", dl.ID, dl.Batch.Source, len(dl.Batch.Jobs))))
		b.WriteByte('\n')
		b.WriteString(prefix)
		b.WriteString(subtitleSt.Render(fmt.Sprintf("%s · %d attempts · %s", failed, dl.Attempts, truncate(dl.LastError, 80))))
		b.WriteByte('\n')
		if i < len(letters)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Run launches the inspector on the alternate screen and blocks until the
// user quits.
func Run(store Store, limit int) error {
	p := tea.NewProgram(newInspector(store, limit), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
