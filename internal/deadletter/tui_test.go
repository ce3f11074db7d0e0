package deadletter

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/jobintel/internal/model"
)

type fakeStore struct {
	letters    []model.DeadLetter
	requeued   []string
	requeueErr error
}

func (f *fakeStore) DeadLetters(context.Context, int) ([]model.DeadLetter, error) {
	return f.letters, nil
}

func (f *fakeStore) Requeue(_ context.Context, id string) error {
	if f.requeueErr != nil {
		return f.requeueErr
	}
	f.requeued = append(f.requeued, id)
	return nil
}

func letter(id string) model.DeadLetter {
	return model.DeadLetter{
		ID:        id,
		Batch:     model.Batch{ID: id, Source: "remoteok", Jobs: []model.JobRecord{{Title: "Backend Engineer", URL: "http://a"}}},
		Attempts:  3,
		LastError: "ingest: HTTP 503",
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func send(t *testing.T, m inspector, msg tea.Msg) (inspector, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(inspector), cmd
}

// loaded returns an inspector sized and populated from store.
func loaded(t *testing.T, store *fakeStore) inspector {
	t.Helper()
	m := newInspector(store, 50)
	m, _ = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = send(t, m, m.Init()())
	return m
}

func TestInspector_LoadsAndNavigates(t *testing.T) {
	m := loaded(t, &fakeStore{letters: []model.DeadLetter{letter("a"), letter("b")}})
	if m.loading || len(m.letters) != 2 {
		t.Fatalf("loading=%v letters=%d", m.loading, len(m.letters))
	}

	m, _ = send(t, m, key("j"))
	if m.cursor != 1 {
		t.Fatalf("cursor = %d, want 1", m.cursor)
	}
	m, _ = send(t, m, key("down"))
	if m.cursor != 1 {
		t.Fatalf("cursor moved past the end: %d", m.cursor)
	}
	m, _ = send(t, m, key("k"))
	if m.cursor != 0 {
		t.Fatalf("cursor = %d, want 0", m.cursor)
	}
	if !strings.Contains(m.View(), "Dead letters (2)") {
		t.Fatalf("view header missing: %s", m.View())
	}
}

func TestInspector_DetailAndBack(t *testing.T) {
	m := loaded(t, &fakeStore{letters: []model.DeadLetter{letter("a")}})

	m, _ = send(t, m, key("enter"))
	if m.view != viewDetail {
		t.Fatal("enter should open the detail view")
	}
	if !strings.Contains(m.renderDetail(m.letters[0]), "ingest: HTTP 503") {
		t.Fatal("detail should show the last error")
	}
	m, _ = send(t, m, key("esc"))
	if m.view != viewList {
		t.Fatal("esc should return to the list")
	}
}

func TestInspector_Requeue(t *testing.T) {
	store := &fakeStore{letters: []model.DeadLetter{letter("a"), letter("b")}}
	m := loaded(t, store)
	m, _ = send(t, m, key("j"))

	m, cmd := send(t, m, key("r"))
	if cmd == nil {
		t.Fatal("r should issue a requeue command")
	}
	m, _ = send(t, m, cmd())

	if len(store.requeued) != 1 || store.requeued[0] != "b" {
		t.Fatalf("requeued = %v", store.requeued)
	}
	if len(m.letters) != 1 || m.letters[0].ID != "a" || m.cursor != 0 {
		t.Fatalf("letters=%v cursor=%d", m.letters, m.cursor)
	}
	if m.status != "requeued b" {
		t.Fatalf("status = %q", m.status)
	}
}

func TestInspector_RequeueFailureKeepsLetter(t *testing.T) {
	store := &fakeStore{letters: []model.DeadLetter{letter("a")}, requeueErr: errors.New("redis down")}
	m := loaded(t, store)

	m, cmd := send(t, m, key("r"))
	m, _ = send(t, m, cmd())
	if len(m.letters) != 1 || !strings.Contains(m.status, "redis down") {
		t.Fatalf("letters=%d status=%q", len(m.letters), m.status)
	}
}

func TestInspector_EmptyListIgnoresActions(t *testing.T) {
	m := loaded(t, &fakeStore{})
	m, _ = send(t, m, key("enter"))
	if m.view != viewList {
		t.Fatal("enter on empty list should stay on the list")
	}
	if _, cmd := send(t, m, key("r")); cmd != nil {
		t.Fatal("r on empty list should do nothing")
	}
}

func TestInspector_Quit(t *testing.T) {
	m := loaded(t, &fakeStore{})
	_, cmd := send(t, m, key("q"))
	if cmd == nil {
		t.Fatal("q should return a quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("q returned %T, want tea.QuitMsg", cmd())
	}
}
