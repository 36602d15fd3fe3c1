package google

import (
	calendar "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
)

// Scopes are the OAuth scopes agenda requests. Calendar access is read-only;
// the profile scopes identify the account.
var Scopes = []string{
	oauth2api.OpenIDScope,
	oauth2api.UserinfoEmailScope,
	oauth2api.UserinfoProfileScope,
	calendar.CalendarReadonlyScope,
}
