package dashboard

import (
	"edgeml/internal/manager"
	"fmt"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"time"
)

var channelHeader = []string{"Channel", "Width", "Fill", "Capacity"}
var deviceHeader = []string{"Device", "Groups", "Overruns", "Faults"}

// Dashboard shows a pipeline status: channel fill, device counters, the
// acquisition timing and the last class probabilities
type Dashboard struct {
	Channels *widgets.Table
	Devices  *widgets.Table
	Summary  *widgets.Paragraph
	Probs    *widgets.BarChart
}

func New() *Dashboard {
	d := &Dashboard{
		Channels: widgets.NewTable(),
		Devices:  widgets.NewTable(),
		Summary:  widgets.NewParagraph(),
		Probs:    widgets.NewBarChart(),
	}
	d.Channels.Title = "Channels"
	d.Channels.Rows = [][]string{channelHeader}
	d.Channels.ColumnWidths = []int{22, 8, 10, 10}
	d.Channels.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.Channels.TextAlignment = ui.AlignRight
	d.Channels.SetRect(0, 0, 52, 18)

	d.Devices.Title = "Devices"
	d.Devices.Rows = [][]string{deviceHeader}
	d.Devices.ColumnWidths = []int{16, 12, 10, 10}
	d.Devices.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.Devices.TextAlignment = ui.AlignRight
	d.Devices.SetRect(52, 0, 102, 18)

	d.Summary.Title = "Pipeline"
	d.Summary.SetRect(0, 18, 52, 30)

	d.Probs.Title = "Probabilities (%)"
	d.Probs.BarWidth = 5
	d.Probs.SetRect(52, 18, 102, 30)
	return d
}

// ChannelRows formats the channel table, header first
func ChannelRows(st manager.Status) [][]string {
	rows := [][]string{channelHeader}
	for _, ch := range st.Channels {
		fill := "0%"
		if ch.Capacity > 0 {
			fill = fmt.Sprintf("%d%%", 100*ch.Samples/ch.Capacity)
		}
		rows = append(rows, []string{ch.Kind, fmt.Sprintf("%dB", ch.Width), fill, fmt.Sprintf("%d", ch.Capacity)})
	}
	return rows
}

// DeviceRows formats the device table, header first
func DeviceRows(st manager.Status) [][]string {
	rows := [][]string{deviceHeader}
	for _, d := range st.Devices {
		rows = append(rows, []string{d.Device, fmt.Sprintf("%d", d.Groups), fmt.Sprintf("%d", d.Overruns), fmt.Sprintf("%d", d.Faults)})
	}
	return rows
}

func SummaryText(st manager.Status) string {
	state := "stopped"
	switch {
	case st.Faulted:
		state = "faulted"
	case st.Running && st.Ready:
		state = "running"
	case st.Running:
		state = "starting"
	}
	text := fmt.Sprintf("state: %s\nengine: %s (%d classes)\nticks: %d\noverruns: %d\nmax tick: %v\nlag: %v\n",
		state, st.Engine, st.Classes, st.Acquisition.Ticks, st.Acquisition.Overruns,
		st.Acquisition.MaxElapsed.Round(time.Microsecond), st.Acquisition.Lag.Round(time.Microsecond))
	if st.LastResult != nil {
		text += st.LastResult.String() + "\n"
	}
	if st.Error != "" {
		text += "error: " + st.Error + "\n"
	}
	return text
}

// ProbabilityBars returns bar values in percent and their class labels
func ProbabilityBars(st manager.Status, labels []string) ([]float64, []string) {
	if st.LastResult == nil {
		return nil, nil
	}
	data := make([]float64, len(st.LastResult.Probs))
	names := make([]string, len(st.LastResult.Probs))
	for i, p := range st.LastResult.Probs {
		data[i] = float64(100 * p)
		if i < len(labels) {
			names[i] = labels[i]
		} else {
			names[i] = fmt.Sprintf("%d", i)
		}
	}
	return data, names
}

// Update refreshes every widget from st
func (d *Dashboard) Update(st manager.Status, labels []string) {
	d.Channels.Rows = ChannelRows(st)
	d.Devices.Rows = DeviceRows(st)
	d.Summary.Text = SummaryText(st)
	d.Probs.Data, d.Probs.Labels = ProbabilityBars(st, labels)
}

func (d *Dashboard) Render() {
	items := []ui.Drawable{d.Channels, d.Devices, d.Summary}
	if len(d.Probs.Data) > 0 {
		items = append(items, d.Probs)
	}
	ui.Render(items...)
}
