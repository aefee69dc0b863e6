package ics

import "strings"

const feedText = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//dayplanner//test//EN
BEGIN:VEVENT
UID:single@test
DTSTAMP:20250101T000000Z
DTSTART:20250310T090000Z
DTEND:20250310T100000Z
SUMMARY:Standup\, daily
LOCATION:Room 1
ORGANIZER:mailto:boss@example.com
ATTENDEE;CN=A:mailto:A@example.com
END:VEVENT
BEGIN:VEVENT
UID:allday@test
DTSTAMP:20250101T000000Z
DTSTART;VALUE=DATE:20250310
SUMMARY:Holiday
END:VEVENT
BEGIN:VEVENT
UID:weekly@test
DTSTAMP:20250101T000000Z
DTSTART;TZID=Europe/Berlin:20250303T140000
DTEND;TZID=Europe/Berlin:20250303T150000
RRULE:FREQ=WEEKLY;COUNT=5
EXDATE;TZID=Europe/Berlin:20250317T140000
SUMMARY:Weekly sync
END:VEVENT
BEGIN:VEVENT
UID:weekly@test
DTSTAMP:20250101T000000Z
RECURRENCE-ID;TZID=Europe/Berlin:20250310T140000
DTSTART;TZID=Europe/Berlin:20250310T160000
DTEND;TZID=Europe/Berlin:20250310T170000
SUMMARY:Weekly sync (moved)
END:VEVENT
BEGIN:VEVENT
UID:floating@test
DTSTAMP:20250101T000000Z
DTSTART:20250310T120000
DURATION:PT30M
SUMMARY:Lunch
END:VEVENT
BEGIN:VEVENT
DTSTAMP:20250101T000000Z
DTSTART:20250310T120000Z
SUMMARY:No uid
END:VEVENT
END:VCALENDAR
`

func feed(text string) []byte {
	return []byte(strings.ReplaceAll(text, "\n", "\r\n"))
}

var testSource = Source{ID: "team", URL: "https://example.com/team.ics"}
