// Package dash is the terminal rendition of the fleet operations dashboard.
// Every pane fetches from the API on its own; a failed fetch shows inline
// alert text in that pane and is not retried until the operator refreshes.
package dash

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"fleetops/internal/client"
	"fleetops/internal/corridor"
	"fleetops/internal/model"
	"fleetops/internal/planner"
)

// API is the slice of the HTTP client the dashboard uses.
type API interface {
	FullTrains(ctx context.Context, date, query, status string) ([]model.TrainRecord, error)
	Performance(ctx context.Context, date string) (model.Performance, error)
	Timeline(ctx context.Context) (corridor.Timeline, error)
	LatestDraft(ctx context.Context) (model.Draft, error)
	Decide(ctx context.Context, id string, approve bool, note string) (model.Draft, error)
	Optimize(ctx context.Context, w *model.Weights, req *model.Requirements) (model.OptimizeResult, error)
	Conflicts(ctx context.Context) ([]model.ConflictReport, error)
}

type pane int

const (
	paneSearch pane = iota
	paneInventory
	paneSliders
	paneDraft
	paneCount
)

var paneNames = [...]string{"search", "inventory", "sliders", "draft"}

// Alert keys for panes that are not focusable.
const (
	alertPerformance = "performance"
	alertRoute       = "route"
	alertConflicts   = "conflicts"
)

var statusFilters = []string{"all", "service", "standby", "maintenance"}

// weightFields are the slider rows in display order.
var weightFields = []struct {
	label string
	get   func(*model.Weights) *float64
}{
	{"Punctuality", func(w *model.Weights) *float64 { return &w.Punctuality }},
	{"Maintenance", func(w *model.Weights) *float64 { return &w.Maintenance }},
	{"Cleaning Readiness", func(w *model.Weights) *float64 { return &w.Cleaning }},
	{"Branding Priority", func(w *model.Weights) *float64 { return &w.Branding }},
	{"Mileage Balancing", func(w *model.Weights) *float64 { return &w.Mileage }},
	{"Telecom Clearance", func(w *model.Weights) *float64 { return &w.Telecom }},
}

const sliderStep = 5

const fetchTimeout = 10 * time.Second

// Messages carrying fetch results.
type (
	fleetMsg struct {
		recs []model.TrainRecord
		err  error
	}
	perfMsg struct {
		perf model.Performance
		err  error
	}
	timelineMsg struct {
		tl  corridor.Timeline
		err error
	}
	draftMsg struct {
		draft model.Draft
		err   error
	}
	conflictsMsg struct {
		reports []model.ConflictReport
		err     error
	}
	optimizedMsg struct {
		res model.OptimizeResult
		err error
	}
	decidedMsg struct {
		draft model.Draft
		err   error
	}
)

type Model struct {
	api      API
	keys     KeyMap
	help     help.Model
	operator string

	width, height int
	focus         pane

	search       textinput.Model
	statusFilter int
	records      []model.TrainRecord
	visible      []model.TrainRecord
	inventory    table.Model

	perf      model.Performance
	timeline  corridor.Timeline
	conflicts []model.ConflictReport

	weights   model.Weights
	sliderIdx int
	lastPlan  *model.OptimizeResult

	draft     *model.Draft
	showDraft bool
	note      textinput.Model

	alerts  map[string]string
	busy    bool
	updated time.Time
}

// New returns a dashboard backed by api. operator is shown in the header.
func New(api API, operator string) Model {
	search := textinput.New()
	search.Placeholder = "train id, brand or bay"
	search.Prompt = "/ "
	search.CharLimit = 64

	note := textinput.New()
	note.Placeholder = "note for the decision log"
	note.CharLimit = 200

	inv := table.New(
		table.WithColumns([]table.Column{
			{Title: "Train", Width: 10},
			{Title: "Status", Width: 20},
			{Title: "Fitness", Width: 8},
			{Title: "Km since maint.", Width: 15},
			{Title: "Branding", Width: 12},
			{Title: "Cleaning", Width: 9},
			{Title: "Bay", Width: 8},
		}),
		table.WithHeight(10),
	)

	return Model{
		api:       api,
		keys:      DefaultKeyMap,
		help:      help.New(),
		operator:  operator,
		search:    search,
		note:      note,
		inventory: inv,
		weights:   model.DefaultWeights(),
		alerts:    map[string]string{},
	}
}

// Run starts the dashboard on the alternate screen and blocks until it quits.
func Run(api API, operator string) error {
	_, err := tea.NewProgram(New(api, operator), tea.WithAltScreen()).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return m.refresh()
}

func (m Model) refresh() tea.Cmd {
	return tea.Batch(
		fetchFleet(m.api),
		fetchPerformance(m.api),
		fetchTimeline(m.api),
		fetchDraft(m.api),
		fetchConflicts(m.api),
	)
}

func fetchFleet(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		recs, err := api.FullTrains(ctx, "", "", "")
		return fleetMsg{recs: recs, err: err}
	}
}

func fetchPerformance(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		p, err := api.Performance(ctx, "")
		return perfMsg{perf: p, err: err}
	}
}

func fetchTimeline(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		tl, err := api.Timeline(ctx)
		return timelineMsg{tl: tl, err: err}
	}
}

func fetchDraft(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		d, err := api.LatestDraft(ctx)
		return draftMsg{draft: d, err: err}
	}
}

func fetchConflicts(api API) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		r, err := api.Conflicts(ctx)
		return conflictsMsg{reports: r, err: err}
	}
}

func optimizeCmd(api API, w model.Weights) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		res, err := api.Optimize(ctx, &w, nil)
		return optimizedMsg{res: res, err: err}
	}
}

func decideCmd(api API, id string, approve bool, note string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		d, err := api.Decide(ctx, id, approve, note)
		return decidedMsg{draft: d, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.inventory.SetHeight(max(5, msg.Height/4))
		return m, nil
	case fleetMsg:
		m.setAlert(paneNames[paneInventory], msg.err)
		if msg.err == nil {
			m.records = msg.recs
			m.updated = time.Now()
			m.applyFilter()
		}
		return m, nil
	case perfMsg:
		m.setAlert(alertPerformance, msg.err)
		if msg.err == nil {
			m.perf = msg.perf
		}
		return m, nil
	case timelineMsg:
		m.setAlert(alertRoute, msg.err)
		if msg.err == nil {
			m.timeline = msg.tl
		}
		return m, nil
	case conflictsMsg:
		m.setAlert(alertConflicts, msg.err)
		if msg.err == nil {
			m.conflicts = msg.reports
		}
		return m, nil
	case draftMsg:
		if isNotFound(msg.err) {
			m.draft = nil
			msg.err = nil
		}
		m.setAlert(paneNames[paneDraft], msg.err)
		if msg.err == nil && msg.draft.ID != "" {
			d := msg.draft
			m.draft = &d
		}
		return m, nil
	case optimizedMsg:
		m.busy = false
		m.setAlert(paneNames[paneSliders], msg.err)
		if msg.err != nil {
			return m, nil
		}
		res := msg.res
		m.lastPlan = &res
		return m, tea.Batch(fetchDraft(m.api), fetchConflicts(m.api), fetchPerformance(m.api))
	case decidedMsg:
		m.busy = false
		m.setAlert(paneNames[paneDraft], msg.err)
		if msg.err != nil {
			return m, nil
		}
		d := msg.draft
		m.draft = &d
		m.closeDraft()
		return m, nil
	case tea.KeyMsg:
		if m.showDraft {
			return m.updateDraftModal(msg)
		}
		if m.focus == paneSearch && m.search.Focused() {
			return m.updateSearch(msg)
		}
		return m.updateMain(msg)
	}
	return m, nil
}

func (m Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.NextPane):
		m.setFocus((m.focus + 1) % paneCount)
		return m, nil
	case key.Matches(msg, m.keys.PrevPane):
		m.setFocus((m.focus + paneCount - 1) % paneCount)
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.setFocus(paneSearch)
		return m, m.search.Focus()
	case key.Matches(msg, m.keys.Status):
		m.statusFilter = (m.statusFilter + 1) % len(statusFilters)
		m.applyFilter()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refresh()
	case key.Matches(msg, m.keys.Optimize):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, optimizeCmd(m.api, m.weights)
	}

	switch m.focus {
	case paneSliders:
		switch {
		case key.Matches(msg, m.keys.Up):
			m.sliderIdx = (m.sliderIdx + len(weightFields) - 1) % len(weightFields)
		case key.Matches(msg, m.keys.Down):
			m.sliderIdx = (m.sliderIdx + 1) % len(weightFields)
		case key.Matches(msg, m.keys.Left):
			m.nudgeWeight(-sliderStep)
		case key.Matches(msg, m.keys.Right):
			m.nudgeWeight(sliderStep)
		}
		return m, nil
	case paneDraft:
		if key.Matches(msg, m.keys.Draft) && m.draft != nil && m.draft.Status == model.DraftPending {
			m.showDraft = true
			return m, m.note.Focus()
		}
		return m, nil
	case paneInventory:
		var cmd tea.Cmd
		m.inventory, cmd = m.inventory.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc, tea.KeyEnter, tea.KeyTab:
		m.search.Blur()
		if msg.Type == tea.KeyTab {
			m.setFocus(paneInventory)
		}
		return m, nil
	case tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m Model) updateDraftModal(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Close):
		m.closeDraft()
		return m, nil
	case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Reject):
		if m.busy || m.draft == nil {
			return m, nil
		}
		m.busy = true
		approve := key.Matches(msg, m.keys.Approve)
		return m, decideCmd(m.api, m.draft.ID, approve, m.note.Value())
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.note, cmd = m.note.Update(msg)
	return m, cmd
}

func (m *Model) setFocus(p pane) {
	m.focus = p
	if p == paneInventory {
		m.inventory.Focus()
	} else {
		m.inventory.Blur()
	}
	if p != paneSearch {
		m.search.Blur()
	}
}

func (m *Model) closeDraft() {
	m.showDraft = false
	m.note.Blur()
	m.note.SetValue("")
}

func (m *Model) nudgeWeight(delta float64) {
	v := weightFields[m.sliderIdx].get(&m.weights)
	*v = clampWeight(*v + delta)
}

// applyFilter recomputes the inventory rows from the search box and the
// status filter.
func (m *Model) applyFilter() {
	recs, err := planner.Filter(m.records, m.search.Value(), statusFilters[m.statusFilter])
	if err != nil {
		m.setAlert(paneNames[paneSearch], err)
		return
	}
	m.setAlert(paneNames[paneSearch], nil)
	m.visible = recs
	m.inventory.SetRows(inventoryRows(recs))
	if c := m.inventory.Cursor(); c >= len(recs) {
		m.inventory.SetCursor(max(0, len(recs)-1))
	}
}

func (m *Model) setAlert(name string, err error) {
	if err == nil {
		delete(m.alerts, name)
		return
	}
	m.alerts[name] = err.Error()
}

func isNotFound(err error) bool {
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func clampWeight(v float64) float64 {
	return min(100, max(0, v))
}

func inventoryRows(recs []model.TrainRecord) []table.Row {
	rows := make([]table.Row, 0, len(recs))
	for _, r := range recs {
		brand := "-"
		if r.BrandingActive && r.BrandingCompany != "" {
			brand = r.BrandingCompany
		}
		cleaning := "ok"
		if r.NeedsCleaning {
			cleaning = "due"
		}
		rows = append(rows, table.Row{
			r.TrainID,
			r.RecommendedAction,
			fmt.Sprintf("%.2f", r.FitnessScore),
			fmt.Sprintf("%d km", r.MileageSinceMaintenance),
			brand,
			cleaning,
			r.StablingBayID,
		})
	}
	return rows
}
