package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapLookup[T any](m map[string]T) Lookup[T] {
	return LookupFunc[T](func(id string) (T, bool) {
		v, ok := m[id]
		return v, ok
	})
}

func TestIDUnmarshal(t *testing.T) {
	testCases := []struct {
		name    string
		input   string
		want    ID
		wantErr bool
	}{
		{name: "number", input: `12`, want: "12"},
		{name: "string", input: `"a-1"`, want: "a-1"},
		{name: "null", input: `null`, want: ""},
		{name: "object", input: `{}`, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var id ID
			err := json.Unmarshal([]byte(tc.input), &id)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, id)
		})
	}
}

func TestTimestampLayouts(t *testing.T) {
	testCases := []struct {
		input string
		want  time.Time
	}{
		{`"2024-05-01T10:30:00+02:00"`, time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)},
		{`"2024-05-01T10:30:00"`, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
		{`"2024-05-01"`, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
		{`1714559400000`, time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			var ts Timestamp
			require.NoError(t, json.Unmarshal([]byte(tc.input), &ts))
			assert.True(t, tc.want.Equal(ts.Time), "got %s", ts.Time)
		})
	}

	var ts Timestamp
	assert.ErrorIs(t, json.Unmarshal([]byte(`"yesterday"`), &ts), ErrInvalidTime)
	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())
}

func TestParseReferenceRecords(t *testing.T) {
	g, err := ParseGrade(json.RawMessage(`{"id":1,"name":"I.","competing":true}`))
	require.NoError(t, err)
	assert.Equal(t, Grade{ID: "1", Name: "I.", Competing: true}, g)

	_, err = ParseGrade(json.RawMessage(`{"id":1}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = ParseClass(json.RawMessage(`{"id":3,"name":"I.A"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord, "a class needs its grade")

	_, err = ParseTag(json.RawMessage(`[]`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestResolveProfile(t *testing.T) {
	grades := mapLookup(map[string]Grade{"1": {ID: "1", Name: "I."}})
	classes := mapLookup(map[string]Class{"3": {ID: "3", Name: "I.A", Grade: "1"}})

	p := ResolveProfile(User{ID: "9", Class: "3"}, classes, grades)
	require.NotNil(t, p.ClassRecord)
	require.NotNil(t, p.GradeRecord)
	assert.Equal(t, "I.A", p.ClassRecord.Name)
	assert.Equal(t, "I.", p.GradeRecord.Name)

	p = ResolveProfile(User{ID: "9", Class: "404"}, classes, grades)
	assert.Nil(t, p.ClassRecord)
	assert.Nil(t, p.GradeRecord)
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Jana Nová", User{FirstName: "Jana", LastName: "Nová", Username: "jn"}.FullName())
	assert.Equal(t, "jn", User{Username: "jn"}.FullName())

	_, err := ParseUser(json.RawMessage(`{"id":1,"email":"not-an-email"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestDecodeDisciplineCollectsEmbeddedUsers(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 4, "name": "Chess", "category": 2, "target_grades": [1, 2],
		"date": "2024-06-01", "start_time": "09:00:00",
		"details_published": true,
		"primary_organisers": [{"id": 10, "username": "org"}],
		"teacher_supervisors": [{"id": 11, "username": "teach"}, {"id": 12, "username": "other"}]
	}`)

	d, users, err := DecodeDiscipline(raw)

	require.NoError(t, err)
	assert.Equal(t, ID("4"), d.ID)
	assert.Equal(t, []ID{"1", "2"}, d.TargetGrades)
	assert.Equal(t, []ID{"10"}, d.Organisers)
	assert.Equal(t, []ID{"11", "12"}, d.Supervisors)
	assert.Len(t, users, 3)
	assert.True(t, d.Published())
	assert.Equal(t, 2024, d.Date.Year())

	_, _, err = DecodeDiscipline(json.RawMessage(`{"id":4,"name":"Chess","primary_organisers":[{"username":"x"}]}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestShouldCacheDiscipline(t *testing.T) {
	assert.True(t, ShouldCacheDiscipline(json.RawMessage(`{"results_published":true}`)))
	assert.False(t, ShouldCacheDiscipline(json.RawMessage(`{"id":1}`)))
	assert.False(t, ShouldCacheDiscipline(json.RawMessage(`nope`)))
}

func TestParsePost(t *testing.T) {
	p, err := ParsePost(json.RawMessage(`{"id":1,"title":"Hello","date":"2024-01-02T10:00:00Z","author":null,"related_disciplines":[4,5,6]}`))
	require.NoError(t, err)
	assert.Equal(t, AdminAuthor, p.Author)

	p2, err := ParsePost(json.RawMessage(`{"id":2,"title":"Hi","date":"2024-01-03T10:00:00Z","author":{"id":7,"username":"ed"}}`))
	require.NoError(t, err)
	assert.Equal(t, "ed", p2.Author.Username)

	_, err = ParsePost(json.RawMessage(`{"id":3,"title":"No date"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	disciplines := mapLookup(map[string]Discipline{
		"4": {ID: "4", Category: "1"},
		"5": {ID: "5", Category: "1"},
		"6": {ID: "6", Category: "2"},
	})
	assert.Equal(t, []ID{"1", "2"}, p.DisciplineCategories(disciplines))

	posts := []Post{p, p2}
	SortPostsNewestFirst(posts)
	assert.Equal(t, ID("2"), posts[0].ID)
}

func TestParseCipherHidesUndisclosedFields(t *testing.T) {
	c, err := ParseCipher(json.RawMessage(`{"id":1,"name":"Secret","task_file":"/t.pdf","hint_text":"look","started":false,"hint_visible":false,"start":"2024-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Empty(t, c.Name)
	assert.Empty(t, c.TaskFile)
	assert.Empty(t, c.Hint)

	c, err = ParseCipher(json.RawMessage(`{"id":1,"name":"Open","task_file":"/t.pdf","hint_text":"look","started":true,"hint_visible":true,"data":{"solved":true,"attempts":2}}`))
	require.NoError(t, err)
	assert.Equal(t, "Open", c.Name)
	assert.Equal(t, "look", c.Hint)
	require.NotNil(t, c.Progress)
	assert.Equal(t, 2, c.Progress.Attempts)
}

func TestParseSubmissionsNewestFirst(t *testing.T) {
	subs, err := ParseSubmissions(json.RawMessage(`[
		{"id":1,"answer":"a","time":"2024-01-01T10:00:00Z"},
		{"id":2,"answer":"b","time":"2024-01-01T12:00:00Z"},
		{"id":3,"answer":"c","time":"2024-01-01T11:00:00Z"}
	]`))
	require.NoError(t, err)
	require.Len(t, subs, 3)
	assert.Equal(t, []ID{"2", "3", "1"}, []ID{subs[0].ID, subs[1].ID, subs[2].ID})

	_, err = ParseSubmissions(json.RawMessage(`[{"id":1}]`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestActiveAlerts(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	parse := func(s string) Alert {
		a, err := ParseAlert(json.RawMessage(s))
		require.NoError(t, err)
		return a
	}
	alerts := []Alert{
		parse(`{"id":"a","message":"old","type":"info","active":true,"created_at":"2024-04-01T00:00:00Z"}`),
		parse(`{"id":"b","message":"new","type":"warning","active":true,"created_at":"2024-04-30T00:00:00Z","lasts_until":"2024-05-02T00:00:00Z"}`),
		parse(`{"id":"c","message":"over","type":"error","active":true,"lasts_until":"2024-04-30T00:00:00Z"}`),
		parse(`{"id":"d","message":"off","type":"success","active":false}`),
	}

	active := ActiveAlerts(alerts, now)

	require.Len(t, active, 2)
	assert.Equal(t, ID("b"), active[0].ID)
	assert.Equal(t, ID("a"), active[1].ID)
	assert.Equal(t, "mdi:alert-outline", active[0].Style().Icon)

	_, err := ParseAlert(json.RawMessage(`{"id":"x","message":"m","type":"fatal"}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)
}

func TestCalendarReferences(t *testing.T) {
	cal, err := ParseCalendar(json.RawMessage(`{
		"id": "auto", "name": "School year",
		"events": [{"id":"e1","name":{"regular":"Sports day","short":"SD"},"date":"2024-06-10","category":2,"grades":[1,9]}]
	}`))
	require.NoError(t, err)
	require.Len(t, cal.Events, 1)

	ev := cal.Events[0]
	cat, ok := ev.CategoryOf(mapLookup(map[string]Category{"2": {ID: "2", Name: "Sport"}}))
	require.True(t, ok)
	assert.Equal(t, "Sport", cat.Name)
	grades := ev.GradesOf(mapLookup(map[string]Grade{"1": {ID: "1", Name: "I."}}))
	assert.Equal(t, []Grade{{ID: "1", Name: "I."}}, grades, "unknown grades are skipped")

	_, err = ParseCalendar(json.RawMessage(`{"name":"x","events":[{"id":"e1","name":{"regular":"n"}}]}`))
	assert.ErrorIs(t, err, ErrInvalidRecord, "events need a date")
}

func TestResolveHandlesEmptyReferences(t *testing.T) {
	_, ok := Resolve[Grade](nil, "1")
	assert.False(t, ok)
	_, ok = Resolve(mapLookup(map[string]Grade{"": {}}), "")
	assert.False(t, ok)
	assert.Empty(t, ResolveAll(mapLookup(map[string]Grade{}), []ID{"1", "2"}))
}
