package store

import (
	"net/url"
	"strings"
)

// MeetingPath is the route of a meeting page.
const MeetingPath = "/meeting/{roomName}"

// MatchPath matches pathname against a pattern of literal and {param} segments
// and returns the decoded params. Trailing slashes are ignored.
func MatchPath(pathname, pattern string) (map[string]string, bool) {
	got := splitPath(pathname)
	want := splitPath(pattern)
	if len(got) != len(want) {
		return nil, false
	}
	params := make(map[string]string)
	for i, seg := range want {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			val, err := url.PathUnescape(got[i])
			if err != nil || val == "" {
				return nil, false
			}
			params[seg[1:len(seg)-1]] = val
			continue
		}
		if seg != got[i] {
			return nil, false
		}
	}
	return params, true
}

// RoomNameFromPath returns the room name of a meeting page path.
func RoomNameFromPath(pathname string) string {
	params, ok := MatchPath(pathname, MeetingPath)
	if !ok {
		return ""
	}
	return params["roomName"]
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
