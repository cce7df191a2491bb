package appointment

import (
	"context"
	"strings"
)

// Text written into notes for each meeting mode. Front-ends that predate the
// meeting_mode column still read these lines.
const (
	MeetingLinkPrefix = "Link tư vấn trực tuyến: "
	OfflineNotice     = "Vui lòng đến phòng khám đúng giờ hẹn."
)

var (
	onlineKeywords  = []string{"online", "trực tuyến"}
	offlineKeywords = []string{"offline", "tại phòng khám"}
)

// MeetingLinkProvider hands out the link patients join an online
// appointment with.
type MeetingLinkProvider interface {
	MeetingLink(ctx context.Context, a *Appointment) (string, error)
}

// StaticMeetingLink returns the same link for every appointment.
type StaticMeetingLink string

func (l StaticMeetingLink) MeetingLink(context.Context, *Appointment) (string, error) {
	return string(l), nil
}

// DetectMeetingMode infers the mode from free text, case-insensitively.
// Online wins when both kinds of keyword appear.
func DetectMeetingMode(purpose string) MeetingMode {
	p := strings.ToLower(purpose)
	for _, k := range onlineKeywords {
		if strings.Contains(p, k) {
			return MeetingModeOnline
		}
	}
	for _, k := range offlineKeywords {
		if strings.Contains(p, k) {
			return MeetingModeOffline
		}
	}
	return MeetingModeUnspecified
}

// AnnotateNotes makes notes carry exactly the text of mode: the other mode's
// line is removed and this mode's line is appended unless already present.
// Unspecified leaves notes untouched. Applying it twice equals applying it once.
func AnnotateNotes(notes string, mode MeetingMode, link string) string {
	var want string
	switch mode {
	case MeetingModeOnline:
		want = MeetingLinkPrefix + link
	case MeetingModeOffline:
		want = OfflineNotice
	default:
		return notes
	}

	trimmed := strings.TrimRight(notes, "\r\n")
	var kept []string
	if trimmed != "" {
		kept = make([]string, 0, strings.Count(trimmed, "\n")+2)
	}
	found := false
	for _, line := range strings.Split(trimmed, "\n") {
		if trimmed == "" {
			break
		}
		bare := strings.TrimSpace(line)
		isLink := strings.HasPrefix(bare, strings.TrimSpace(MeetingLinkPrefix))
		isNotice := bare == OfflineNotice

		switch {
		case !isLink && !isNotice:
			kept = append(kept, line)
		case bare == want && !found:
			found = true
			kept = append(kept, want)
		}
	}
	if !found {
		kept = append(kept, want)
	}

	return strings.Join(kept, "\n")
}

// appendNoteLine adds line at the end of notes on its own line.
func appendNoteLine(notes, line string) string {
	notes = strings.TrimRight(notes, "\r\n")
	if notes == "" {
		return line
	}
	return notes + "\n" + line
}

// applyMeetingMode sets the explicit mode fields and the legacy notes text.
func (s *Service) applyMeetingMode(ctx context.Context, a *Appointment, mode MeetingMode) error {
	switch mode {
	case MeetingModeOnline:
		link, err := s.links.MeetingLink(ctx, a)
		if err != nil {
			return err
		}
		a.MeetingMode = MeetingModeOnline
		a.MeetingLink = &link
		a.Notes = AnnotateNotes(a.Notes, MeetingModeOnline, link)
	case MeetingModeOffline:
		a.MeetingMode = MeetingModeOffline
		a.MeetingLink = nil
		a.Notes = AnnotateNotes(a.Notes, MeetingModeOffline, "")
	}
	return nil
}
