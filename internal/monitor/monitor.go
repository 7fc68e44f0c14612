package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	log "github.com/sirupsen/logrus"
	"imucap/internal/acquisition"
	"imucap/internal/sensor"
	"net/http"
	"time"
)

const requestTimeout = 2 * time.Second

var defaultTableValue = [][]string{{"Seq", "Time", "Accel (g)", "Gyro (dps)", "ID"}}

// Poller fetches the last sample from a running serve instance.
type Poller struct {
	baseURL string
	client  *http.Client
}

func NewPoller(baseURL string) *Poller {
	return &Poller{
		baseURL: baseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Fetch returns the last sample, or nil when none has been reported yet.
func (p *Poller) Fetch(ctx context.Context) (*acquisition.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/sample", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("GET /sample: %s", resp.Status)
	}

	var s acquisition.Sample
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

func printVector(v sensor.Vector3) string {
	return fmt.Sprintf("%.2f, %.2f, %.2f", v.X, v.Y, v.Z)
}

// Row renders s as a table row.
func Row(s *acquisition.Sample) []string {
	sec, ms := s.Elapsed()
	id := "-"
	if s.HasID {
		id = fmt.Sprintf("0x%02X", s.DeviceID)
	}
	return []string{
		fmt.Sprintf("%d", s.Seq),
		fmt.Sprintf("%d.%03d", sec, ms),
		printVector(s.Accel),
		printVector(s.Gyro),
		id,
	}
}

func getTable() *widgets.Table {
	table := widgets.NewTable()
	table.Rows = append(defaultTableValue, []string{"", "", "", "", ""})
	table.ColumnWidths = []int{10, 14, 24, 24, 8}
	table.TextStyle = ui.NewStyle(ui.ColorWhite)
	table.TextAlignment = ui.AlignRight
	table.SetRect(0, 0, 80, 5)
	return table
}

func updateValue(ctx context.Context, p *Poller, table *widgets.Table, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s, err := p.Fetch(ctx)
		if err != nil {
			log.Debugln(err)
			continue
		}
		if s == nil {
			continue
		}
		table.Rows[1] = Row(s)
		ui.Render(table)
	}
}

// Run shows the live sample table until q or Ctrl-C is pressed.
func Run(baseURL string, interval time.Duration) error {
	if err := ui.Init(); err != nil {
		return fmt.Errorf("failed to initialize termui: %w", err)
	}
	defer ui.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	t := getTable()
	ui.Render(t)
	go updateValue(ctx, NewPoller(baseURL), t, interval)

	uiEvents := ui.PollEvents()
	for {
		e := <-uiEvents
		switch e.ID {
		case "q", "<C-c>":
			return nil
		}
	}
}
