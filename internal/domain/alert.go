package domain

import (
	"encoding/json"
	"slices"
	"time"
)

// AlertType is the severity of an alert.
type AlertType string

const (
	AlertSuccess AlertType = "success"
	AlertError   AlertType = "error"
	AlertInfo    AlertType = "info"
	AlertWarning AlertType = "warning"
)

// AlertStyle is how an alert type is presented.
type AlertStyle struct {
	Classes string
	Icon    string
}

var alertStyles = map[AlertType]AlertStyle{
	AlertWarning: {Classes: "dark:bg-yellow-600 dark:border-yellow-800 bg-yellow-200 border-yellow-500", Icon: "mdi:alert-outline"},
	AlertError:   {Classes: "dark:bg-red-700 dark:border-red-900 bg-red-200 border-red-500", Icon: "mdi:alert-circle-outline"},
	AlertSuccess: {Classes: "dark:bg-green-600 dark:border-green-800 bg-green-200 border-green-500", Icon: "mdi:check-circle-outline"},
	AlertInfo:    {Classes: "dark:bg-blue-600 dark:border-blue-900 bg-blue-200 border-blue-500", Icon: "mdi:information-outline"},
}

// Alert is a site-wide announcement.
type Alert struct {
	ID         ID        `json:"id" validate:"required"`
	Message    string    `json:"message" validate:"required"`
	Type       AlertType `json:"type" validate:"oneof=success error info warning"`
	CreatedAt  Timestamp `json:"created_at"`
	LastsUntil Timestamp `json:"lasts_until"`
	Active     bool      `json:"active"`
}

// ParseAlert decodes and validates an alert.
func ParseAlert(raw json.RawMessage) (Alert, error) { return decode[Alert]("alert", raw) }

// Style returns the presentation details of the alert's type.
func (a Alert) Style() AlertStyle { return alertStyles[a.Type] }

// ActiveAt reports whether the alert should be shown at now. An alert
// without an end time lasts until it is deactivated.
func (a Alert) ActiveAt(now time.Time) bool {
	return a.Active && (a.LastsUntil.IsZero() || now.Before(a.LastsUntil.Time))
}

// ActiveAlerts filters alerts active at now, newest first.
func ActiveAlerts(alerts []Alert, now time.Time) []Alert {
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.ActiveAt(now) {
			out = append(out, a)
		}
	}
	slices.SortStableFunc(out, func(a, b Alert) int {
		return b.CreatedAt.Compare(a.CreatedAt.Time)
	})
	return out
}
