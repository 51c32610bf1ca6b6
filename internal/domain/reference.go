package domain

import "encoding/json"

// Grade is a school year group.
type Grade struct {
	ID              ID     `json:"id" validate:"required"`
	Name            string `json:"name" validate:"required"`
	Competing       bool   `json:"competing"`
	CipherCompeting bool   `json:"cipher_competing"`
	IsOrganiser     bool   `json:"is_organiser"`
	IsTeacher       bool   `json:"is_teacher"`
}

// Class is a class within a grade.
type Class struct {
	ID     ID     `json:"id" validate:"required"`
	Name   string `json:"name" validate:"required"`
	Grade  ID     `json:"grade" validate:"required"`
	IsFake bool   `json:"is_fake"`
}

// Category groups disciplines and calendar events.
type Category struct {
	ID            ID     `json:"id" validate:"required"`
	Name          string `json:"name" validate:"required"`
	CalendarClass string `json:"calendar_class"`
	Icon          string `json:"icon"`
}

// Tag labels posts.
type Tag struct {
	ID   ID     `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

func ParseGrade(raw json.RawMessage) (Grade, error)       { return decode[Grade]("grade", raw) }
func ParseClass(raw json.RawMessage) (Class, error)       { return decode[Class]("class", raw) }
func ParseCategory(raw json.RawMessage) (Category, error) { return decode[Category]("category", raw) }
func ParseTag(raw json.RawMessage) (Tag, error)           { return decode[Tag]("tag", raw) }

// GradeOf resolves the grade a class belongs to.
func (c Class) GradeOf(grades Lookup[Grade]) (Grade, bool) {
	return Resolve(grades, c.Grade)
}
