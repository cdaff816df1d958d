package charts

import (
	"encoding/json"
	"time"

	"go-mailflow-dashboard/internal/tracking"
)

// LabelLayout is the x-axis label format of every chart (MM-DD HH:mm).
const LabelLayout = "01-02 15:04"

// QueuePoint is one sample of QueueStatsChart.json.
type QueuePoint struct {
	Timestamp   string  `json:"timestamp"`
	TotalQueued float64 `json:"totalQueued"`
	Retry       float64 `json:"retry"`
	Failed      float64 `json:"failed"`
}

// MailPoint is one sample of MailStatsChart.json.
type MailPoint struct {
	Timestamp string  `json:"timestamp"`
	Sent      float64 `json:"sent"`
	Received  float64 `json:"received"`
}

// Dataset is one named series aligned with Chart.Labels.
type Dataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// Chart is a chart-ready payload: one label per sample, one dataset per series.
type Chart struct {
	Kind     string    `json:"kind"`
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Label formats a sample timestamp, or tracking.InvalidDisplay.
func Label(raw string, loc *time.Location) string {
	t, ok := tracking.ParseTimestamp(raw, loc)
	if !ok {
		return tracking.InvalidDisplay
	}
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(LabelLayout)
}

// QueueChart converts queue samples into a line chart. maxPoints > 0 keeps
// only the newest samples.
func QueueChart(points []QueuePoint, loc *time.Location, maxPoints int) Chart {
	points = tail(points, maxPoints)
	c := Chart{
		Kind:   "line",
		Labels: make([]string, 0, len(points)),
		Datasets: []Dataset{
			{Label: "Total Queued", Data: make([]float64, 0, len(points))},
			{Label: "Retry", Data: make([]float64, 0, len(points))},
			{Label: "Failed", Data: make([]float64, 0, len(points))},
		},
	}
	for _, p := range points {
		c.Labels = append(c.Labels, Label(p.Timestamp, loc))
		c.Datasets[0].Data = append(c.Datasets[0].Data, p.TotalQueued)
		c.Datasets[1].Data = append(c.Datasets[1].Data, p.Retry)
		c.Datasets[2].Data = append(c.Datasets[2].Data, p.Failed)
	}
	return c
}

// MailChart converts sent/received samples into a stacked bar chart.
func MailChart(points []MailPoint, loc *time.Location, maxPoints int) Chart {
	points = tail(points, maxPoints)
	c := Chart{
		Kind:   "bar",
		Labels: make([]string, 0, len(points)),
		Datasets: []Dataset{
			{Label: "Sent Emails", Data: make([]float64, 0, len(points))},
			{Label: "Received Emails", Data: make([]float64, 0, len(points))},
		},
	}
	for _, p := range points {
		c.Labels = append(c.Labels, Label(p.Timestamp, loc))
		c.Datasets[0].Data = append(c.Datasets[0].Data, p.Sent)
		c.Datasets[1].Data = append(c.Datasets[1].Data, p.Received)
	}
	return c
}

// DecodeQueuePoints decodes QueueStatsChart.json.
func DecodeQueuePoints(data []byte) ([]QueuePoint, error) {
	var out []QueuePoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeMailPoints decodes MailStatsChart.json.
func DecodeMailPoints(data []byte) ([]MailPoint, error) {
	var out []MailPoint
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func tail[T any](points []T, maxPoints int) []T {
	if maxPoints > 0 && len(points) > maxPoints {
		return points[len(points)-maxPoints:]
	}
	return points
}
