package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	orderdomain "github.com/smallbiznis/ordersync/internal/order/domain"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobPreparing JobStatus = "preparing"
	JobReady     JobStatus = "ready"
	JobServed    JobStatus = "served"
)

// LineKey is the per-line idempotency key for kitchen dispatch.
type LineKey struct {
	OrderID string `json:"order_id"`
	LineID  string `json:"line_id"`
}

func (k LineKey) String() string {
	return k.OrderID + "/" + k.LineID
}

func KeyOf(orderID string, line orderdomain.Line) LineKey {
	return LineKey{OrderID: orderID, LineID: line.ID}
}

// Job is a disposable per-station projection of an order's unsent lines.
type Job struct {
	ID            snowflake.ID          `json:"id"`
	OrderID       string                `json:"order_id"`
	InvoiceNumber string                `json:"invoice_number,omitempty"`
	StationID     string                `json:"station_id"`
	OrderType     orderdomain.OrderType `json:"order_type"`
	Tables        []string              `json:"table_ids,omitempty"`
	Status        JobStatus             `json:"status"`
	CreatedAt     time.Time             `json:"created_at"`
	Details       []JobDetail           `json:"details"`
	History       []JobHistory          `json:"history"`
}

type JobDetail struct {
	LineID    string          `json:"line_id"`
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name,omitempty"`
	Quantity  decimal.Decimal `json:"quantity"`
	Modifiers []string        `json:"modifiers,omitempty"`
	Notes     string          `json:"notes,omitempty"`
}

type JobHistory struct {
	LineID string    `json:"line_id"`
	Status JobStatus `json:"status"`
	At     time.Time `json:"at"`
}

// Key identifies the job by order, station and creation time.
func (j Job) Key() string {
	return fmt.Sprintf("%s:%s:%d", j.OrderID, j.StationID, j.CreatedAt.UnixMilli())
}

func (j Job) LineKeys() []LineKey {
	keys := make([]LineKey, 0, len(j.Details))
	for _, d := range j.Details {
		keys = append(keys, LineKey{OrderID: j.OrderID, LineID: d.LineID})
	}
	return keys
}

// BuildJobs groups lines by kitchen station, one job per station, in station order.
func BuildJobs(order orderdomain.Order, lines []orderdomain.Line, now time.Time, node *snowflake.Node) []Job {
	if len(lines) == 0 {
		return nil
	}

	byStation := make(map[string][]orderdomain.Line)
	for _, line := range lines {
		station := line.KitchenSection
		if station == "" {
			station = orderdomain.DefaultKitchenSection
		}
		byStation[station] = append(byStation[station], line)
	}
	stations := make([]string, 0, len(byStation))
	for station := range byStation {
		stations = append(stations, station)
	}
	sort.Strings(stations)

	jobs := make([]Job, 0, len(stations))
	for _, station := range stations {
		job := Job{
			ID:            node.Generate(),
			OrderID:       order.ID,
			InvoiceNumber: order.InvoiceNumber,
			StationID:     station,
			OrderType:     order.Type,
			Tables:        append([]string(nil), order.Tables...),
			Status:        JobQueued,
			CreatedAt:     now,
		}
		for _, line := range byStation[station] {
			detail := JobDetail{
				LineID:   line.ID,
				ItemID:   line.ItemID,
				Name:     line.Name,
				Quantity: line.Quantity,
				Notes:    line.Notes,
			}
			for _, m := range line.Modifiers {
				if m.Name != "" {
					detail.Modifiers = append(detail.Modifiers, m.Name)
				}
			}
			job.Details = append(job.Details, detail)
			job.History = append(job.History, JobHistory{LineID: line.ID, Status: JobQueued, At: now})
		}
		jobs = append(jobs, job)
	}
	return jobs
}

type DeliveryUpdate struct {
	OrderID  string    `json:"order_id"`
	Status   string    `json:"status"`
	DriverID string    `json:"driver_id,omitempty"`
	At       time.Time `json:"at"`
}

type HandoffUpdate struct {
	OrderID   string    `json:"order_id"`
	StationID string    `json:"station_id"`
	LineIDs   []string  `json:"line_ids,omitempty"`
	Status    JobStatus `json:"status"`
	At        time.Time `json:"at"`
}
