package calendar

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/agenda/internal/account"
)

func TestEventTime_SortKey(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	timed := EventTime{DateTime: time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)}
	assert.True(t, timed.SortKey(berlin).Equal(timed.DateTime))

	allDay := EventTime{Date: "2024-03-04"}
	assert.True(t, allDay.SortKey(berlin).Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, berlin)))
	assert.True(t, allDay.SortKey(time.UTC).Equal(time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)))

	assert.True(t, EventTime{Date: "garbage"}.SortKey(time.UTC).IsZero())
}

func TestEvent_OpenURL(t *testing.T) {
	tests := []struct {
		name  string
		link  string
		email string
		want  string
	}{
		{"no query", "https://calendar.google.com/event", "a@b.com", "https://calendar.google.com/event?authuser=a%40b.com"},
		{"existing query", "https://www.google.com/calendar/event?eid=xyz", "a@b.com", "https://www.google.com/calendar/event?authuser=a%40b.com&eid=xyz"},
		{"no email", "https://calendar.google.com/event", "", "https://calendar.google.com/event"},
		{"no link", "", "a@b.com", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Event{HTMLLink: tt.link}.OpenURL(tt.email))
		})
	}
}

func TestEvent_Ongoing(t *testing.T) {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	ev := Event{Start: EventTime{DateTime: start}, End: EventTime{DateTime: start.Add(time.Hour)}}

	assert.False(t, ev.Ongoing(start.Add(-time.Second)))
	assert.True(t, ev.Ongoing(start))
	assert.True(t, ev.Ongoing(start.Add(59*time.Minute)))
	assert.False(t, ev.Ongoing(start.Add(time.Hour)))

	allDay := Event{Start: EventTime{Date: "2024-03-04"}, End: EventTime{Date: "2024-03-05"}}
	assert.False(t, allDay.Ongoing(start))
}

func TestEvent_KeyAndJSON(t *testing.T) {
	ev := Event{ID: "evt-42", AccountID: "acc", Start: EventTime{Date: "2024-03-04"}}
	assert.Equal(t, Key{ID: "evt-42", AccountID: "acc"}, ev.Key())

	data, err := json.Marshal(ev.Start)
	require.NoError(t, err)
	assert.JSONEq(t, `{"date":"2024-03-04"}`, string(data))

	var back Event
	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, ev, back)
}

func TestOwnedCalendars(t *testing.T) {
	cals := []account.CalendarConfig{
		{ID: "jane@example.com", Primary: true},
		{ID: "team@group.calendar.google.com"},
		{ID: "en.german#holiday@group.v.calendar.google.com"},
		{ID: "bob@example.com"},
		{ID: "addressbook#contacts@group.v.calendar.google.com"},
	}

	var ids []string
	for _, c := range OwnedCalendars("jane@example.com", cals) {
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{
		"jane@example.com",
		"team@group.calendar.google.com",
		"en.german#holiday@group.v.calendar.google.com",
		"addressbook#contacts@group.v.calendar.google.com",
	}, ids)
}
