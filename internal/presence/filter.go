// Package presence decides which study announcements a viewer may see and
// classifies study-mate connections.
package presence

import (
	"slices"

	"tsureben-backend/internal/models"
)

// Viewer is the user looking at the presence list. FilterGrade and FilterClass
// are the optional narrowing a teacher picks; they are ignored for students.
type Viewer struct {
	Email       string
	Grade       string
	Class       string
	Teacher     bool
	FilterGrade string
	FilterClass string
}

// Visible reports whether v may see a. Unknown scopes are never visible.
func Visible(v Viewer, a models.ActiveSession) bool {
	if a.Email == "" || a.Email == v.Email {
		return false
	}

	if v.Teacher {
		if v.FilterGrade != "" && a.Grade != v.FilterGrade {
			return false
		}
		if v.FilterClass != "" && a.Class != v.FilterClass {
			return false
		}
		return true
	}

	switch a.ShareScope {
	case models.ScopePublic:
		return true
	// An unset grade matches nobody.
	case models.ScopeGrade:
		return a.Grade != "" && a.Grade == v.Grade
	case models.ScopeClass:
		return a.Grade != "" && a.Grade == v.Grade && a.Class == v.Class
	case models.ScopeMates:
		return slices.Contains(a.TurebenRequests, v.Email) && !slices.Contains(a.HiddenMates, v.Email)
	default:
		return false
	}
}

// Filter returns the announcements visible to v in their original order.
func Filter(v Viewer, all []models.ActiveSession) []models.ActiveSession {
	out := make([]models.ActiveSession, 0, len(all))
	for _, a := range all {
		if Visible(v, a) {
			out = append(out, a)
		}
	}
	return out
}
