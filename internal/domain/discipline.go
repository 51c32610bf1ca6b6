package domain

import (
	"encoding/json"
	"fmt"
)

// Discipline is a competition discipline or school event.
type Discipline struct {
	ID        ID        `json:"id" validate:"required"`
	Name      string    `json:"name" validate:"required"`
	ShortName string    `json:"short_name"`
	Details   string    `json:"details"`
	Date      Timestamp `json:"date"`
	// StartTime and EndTime are clock times ("15:04:05") on Date.
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Location  string `json:"location"`

	Category     ID   `json:"category"`
	TargetGrades []ID `json:"target_grades"`

	DatePublished    bool `json:"date_published"`
	DetailsPublished bool `json:"details_published"`
	ResultsPublished bool `json:"results_published"`

	Organisers  []ID `json:"-"`
	Supervisors []ID `json:"-"`
}

type disciplinePayload struct {
	Discipline
	PrimaryOrganisers  []json.RawMessage `json:"primary_organisers"`
	TeacherSupervisors []json.RawMessage `json:"teacher_supervisors"`
}

// DecodeDiscipline decodes a discipline together with the user records
// embedded in it as organisers and supervisors.
func DecodeDiscipline(raw json.RawMessage) (Discipline, []User, error) {
	p, err := decode[disciplinePayload]("discipline", raw)
	if err != nil {
		return Discipline{}, nil, err
	}
	d := p.Discipline
	var users []User
	for _, group := range []struct {
		raws []json.RawMessage
		ids  *[]ID
	}{
		{p.PrimaryOrganisers, &d.Organisers},
		{p.TeacherSupervisors, &d.Supervisors},
	} {
		for _, r := range group.raws {
			u, err := ParseUser(r)
			if err != nil {
				return Discipline{}, nil, fmt.Errorf("discipline %s: %w", d.ID, err)
			}
			*group.ids = append(*group.ids, u.ID)
			users = append(users, u)
		}
	}
	return d, users, nil
}

// ParseDiscipline decodes a discipline, dropping embedded users.
func ParseDiscipline(raw json.RawMessage) (Discipline, error) {
	d, _, err := DecodeDiscipline(raw)
	return d, err
}

// Published reports whether any part of the discipline is public.
func (d Discipline) Published() bool {
	return d.DatePublished || d.DetailsPublished || d.ResultsPublished
}

// ShouldCacheDiscipline lets only published disciplines reach persistent
// storage.
func ShouldCacheDiscipline(raw json.RawMessage) bool {
	var flags struct {
		DatePublished    bool `json:"date_published"`
		DetailsPublished bool `json:"details_published"`
		ResultsPublished bool `json:"results_published"`
	}
	if err := json.Unmarshal(raw, &flags); err != nil {
		return false
	}
	return flags.DatePublished || flags.DetailsPublished || flags.ResultsPublished
}
