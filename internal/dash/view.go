package dash

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"fleetops/internal/model"
)

const appName = "Fleet Ops"

func (m Model) View() string {
	header := m.headerView()
	cards := m.dashboardView()

	left := lipgloss.JoinVertical(lipgloss.Left, m.searchView(), m.slidersView())
	top := lipgloss.JoinHorizontal(lipgloss.Top, left, m.routeView())
	middle := lipgloss.JoinHorizontal(lipgloss.Top, m.inventoryView(), m.performanceView())
	bottom := lipgloss.JoinHorizontal(lipgloss.Top, m.draftView(), m.conflictsView())

	var footer string
	if m.showDraft {
		footer = m.help.View(modalKeys{m.keys})
	} else {
		footer = m.help.View(m.keys)
	}
	main := lipgloss.JoinVertical(lipgloss.Left, header, cards, top, middle, bottom, footer)
	if m.showDraft && m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.draftModalView())
	}
	if m.showDraft {
		return main + "\n" + m.draftModalView()
	}
	return main
}

// Header
func (m Model) headerView() string {
	date := "-"
	if len(m.records) > 0 {
		date = m.records[0].Date
	}
	parts := []string{headerStyle.Render(appName), mutedStyle.Render("snapshot " + date)}
	if m.operator != "" {
		parts = append(parts, mutedStyle.Render("operator "+m.operator))
	}
	if !m.updated.IsZero() {
		parts = append(parts, mutedStyle.Render("updated "+m.updated.Format("15:04:05")))
	}
	if m.busy {
		parts = append(parts, warnStyle.Render("working…"))
	}
	return strings.Join(parts, "  ")
}

// dashboardView renders the summary cards across the top.
func (m Model) dashboardView() string {
	p := m.perf
	cards := []string{
		statCard("Total Trains", p.TotalTrains),
		statCard("Available Trains", p.RevenueService+p.Standby),
		statCard("Maintenance Due", p.Maintenance),
		statCard("Pending Tasks", p.OpenJobCards),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, cards...)
}

func statCard(label string, v int) string {
	body := labelStyle.Render(label) + "\n" + titleStyle.Render(fmt.Sprintf("%6d", v))
	return cardStyle.Width(20).Render(body)
}

func (m Model) card(p pane, title, body string) string {
	style := cardStyle
	if m.focus == p {
		style = focusedCardStyle
	}
	return style.Render(titleStyle.Render(title) + "\n" + body)
}

func alertLine(msg string) string {
	return errorStyle.Render("! " + msg)
}

func (m Model) searchView() string {
	var b strings.Builder
	b.WriteString(m.search.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf("status: %s  ·  %d of %d trains", statusFilters[m.statusFilter], len(m.visible), len(m.records))))
	if a, ok := m.alerts[paneNames[paneSearch]]; ok {
		b.WriteString("\n" + alertLine(a))
	}
	return m.card(paneSearch, "Search Trains", b.String())
}

func (m Model) slidersView() string {
	var b strings.Builder
	b.WriteString(mutedStyle.Render("Adjust factors to influence induction assignment") + "\n")
	for i, f := range weightFields {
		v := *f.get(&m.weights)
		cursor := "  "
		if m.focus == paneSliders && i == m.sliderIdx {
			cursor = titleStyle.Render("> ")
		}
		fmt.Fprintf(&b, "%s%-19s %s %3.0f\n", cursor, f.label, sliderBar(v, 20), v)
	}
	if m.lastPlan != nil {
		s := m.lastPlan.Summary
		fmt.Fprintf(&b, "last plan %s: %s service · %s standby · %s IBL · %d conflicts",
			m.lastPlan.Date,
			okStyle.Render(fmt.Sprint(s.Service)),
			warnStyle.Render(fmt.Sprint(s.Standby)),
			errorStyle.Render(fmt.Sprint(s.IBL)),
			s.ConflictsFound)
	}
	if a, ok := m.alerts[paneNames[paneSliders]]; ok {
		b.WriteString("\n" + alertLine(a))
	}
	return m.card(paneSliders, "Optimization Weights", strings.TrimRight(b.String(), "\n"))
}

// sliderBar draws v (0..100) as a bar of the given width.
func sliderBar(v float64, width int) string {
	if width <= 0 {
		return ""
	}
	filled := int(clampWeight(v)/100*float64(width) + 0.5)
	return titleStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", width-filled))
}

// RouteVisualizer
func (m Model) routeView() string {
	var b strings.Builder
	if a, ok := m.alerts[alertRoute]; ok {
		b.WriteString(alertLine(a))
		return cardStyle.Render(titleStyle.Render("Route") + "\n" + b.String())
	}
	tl := m.timeline
	fmt.Fprintf(&b, "%s  %.1f km\n", labelStyle.Render(tl.Corridor), tl.TotalKm)
	for i, s := range tl.Stops {
		marker := "●"
		if i < len(tl.Stops)-1 {
			marker = "●─"
		}
		fmt.Fprintf(&b, "%s %-18s %8s %s\n", infoStyle.Render(marker), s.Name, s.Arrival, delayLabel(max(s.ArrivalDelay, s.DepartureDelay)))
	}
	if len(tl.Stops) > 0 {
		fmt.Fprintf(&b, "max delay %s · at terminus %s", delayLabel(tl.MaxDelay), delayLabel(tl.EndDelay))
	}
	return cardStyle.Render(titleStyle.Render("Route") + "\n" + strings.TrimRight(b.String(), "\n"))
}

func delayLabel(mins int) string {
	switch {
	case mins <= 0:
		return okStyle.Render("on time")
	case mins < 5:
		return warnStyle.Render(fmt.Sprintf("+%d min", mins))
	}
	return errorStyle.Render(fmt.Sprintf("+%d min", mins))
}

// TrainInventory
func (m Model) inventoryView() string {
	body := m.inventory.View()
	if a, ok := m.alerts[paneNames[paneInventory]]; ok {
		body = alertLine("Error loading data: "+a) + "\n" + body
	} else if len(m.records) == 0 {
		body = mutedStyle.Render("No train data loaded")
	}
	return m.card(paneInventory, "Train Inventory", body)
}

// PerformanceCard
func (m Model) performanceView() string {
	if a, ok := m.alerts[alertPerformance]; ok {
		return cardStyle.Render(titleStyle.Render("Performance") + "\n" + alertLine(a))
	}
	p := m.perf
	rows := []string{
		fmt.Sprintf("Availability   %s", okStyle.Render(fmt.Sprintf("%5.1f%%", p.AvailabilityPct))),
		fmt.Sprintf("Avg fitness    %5.2f", p.AvgFitness),
		fmt.Sprintf("In service     %5d", p.RevenueService),
		fmt.Sprintf("Standby        %5d", p.Standby),
		fmt.Sprintf("Maintenance    %5d", p.Maintenance),
		fmt.Sprintf("Branded active %5d", p.BrandedActive),
		fmt.Sprintf("Cleaning due   %5d", p.CleaningDue),
		fmt.Sprintf("Certs ≤7 days  %5d", p.CertsExpiring),
		fmt.Sprintf("Open job cards %5d", p.OpenJobCards),
	}
	return cardStyle.Render(titleStyle.Render("Performance "+p.Date) + "\n" + strings.Join(rows, "\n"))
}

// AutoDraft
func (m Model) draftView() string {
	var body string
	switch {
	case m.draft == nil:
		body = mutedStyle.Render("No draft plan yet. Press o to optimize.")
	default:
		d := m.draft
		body = fmt.Sprintf("Induction plan for %s\n%s  %d service · %d standby · %d IBL",
			d.Date,
			statusStyle(d.Status).Render(d.Status),
			d.Summary.Service, d.Summary.Standby, d.Summary.IBL)
		if d.DecidedBy != "" {
			body += mutedStyle.Render(fmt.Sprintf("\n%s by %s", strings.ToLower(d.Status), d.DecidedBy))
		}
		if d.Status == model.DraftPending {
			body += "\n" + mutedStyle.Render("enter to review")
		}
	}
	if a, ok := m.alerts[paneNames[paneDraft]]; ok {
		body += "\n" + alertLine(a)
	}
	return m.card(paneDraft, "Auto Draft", body)
}

func (m Model) draftModalView() string {
	d := m.draft
	if d == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", titleStyle.Render("Draft plan "+d.Date))
	for _, e := range d.Plan {
		fmt.Fprintf(&b, "%-10s %s %.3f\n", e.TrainID, statusStyle(string(e.Assignment)).Render(fmt.Sprintf("%-8s", e.Assignment)), e.Score)
	}
	for _, c := range d.Conflicts {
		fmt.Fprintf(&b, "%s\n", conflictLine(c))
	}
	b.WriteString("\n" + m.note.View())
	if a, ok := m.alerts[paneNames[paneDraft]]; ok {
		b.WriteString("\n" + alertLine(a))
	}
	return modalStyle.Render(b.String())
}

func (m Model) conflictsView() string {
	if a, ok := m.alerts[alertConflicts]; ok {
		return cardStyle.Render(titleStyle.Render("Conflicts") + "\n" + alertLine(a))
	}
	var lines []string
	for _, r := range m.conflicts {
		for _, c := range r.Conflicts {
			lines = append(lines, conflictLine(c))
		}
		if len(lines) >= 8 {
			break
		}
	}
	if len(lines) == 0 {
		lines = []string{okStyle.Render("No recent conflicts")}
	}
	return cardStyle.Render(titleStyle.Render("Conflicts") + "\n" + strings.Join(lines, "\n"))
}

func conflictLine(c model.Conflict) string {
	style := warnStyle
	if c.Severity == model.SeverityCritical {
		style = errorStyle
	}
	subject := "fleet"
	if c.TrainID != "" {
		subject = c.TrainID
	}
	return style.Render(fmt.Sprintf("[%s] %s: %s", c.Severity, subject, c.Issue))
}
