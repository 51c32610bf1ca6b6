package domain

import "encoding/json"

// Calendar is the generated school calendar.
type Calendar struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Events      []CalendarEvent `json:"events" validate:"dive"`
}

// EventName carries a full and an abbreviated name.
type EventName struct {
	Regular string `json:"regular" validate:"required"`
	Short   string `json:"short"`
}

// CalendarEvent is one entry of the calendar.
type CalendarEvent struct {
	ID        ID        `json:"id" validate:"required"`
	Name      EventName `json:"name"`
	Date      Timestamp `json:"date" validate:"required"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Location  string    `json:"location"`
	Category  ID        `json:"category"`
	Grades    []ID      `json:"grades"`
}

// ParseCalendar decodes and validates the calendar.
func ParseCalendar(raw json.RawMessage) (Calendar, error) {
	return decode[Calendar]("calendar", raw)
}

// CategoryOf resolves the event's category.
func (e CalendarEvent) CategoryOf(categories Lookup[Category]) (Category, bool) {
	return Resolve(categories, e.Category)
}

// GradesOf resolves the grades the event concerns.
func (e CalendarEvent) GradesOf(grades Lookup[Grade]) []Grade {
	return ResolveAll(grades, e.Grades)
}
