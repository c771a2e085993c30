package presence

import (
	"slices"

	"tsureben-backend/internal/models"
)

type Connections struct {
	Mutual        []models.User `json:"mutual"`
	Sent          []models.User `json:"sent"`
	Received      []models.User `json:"received"`
	HiddenPending []models.User `json:"hidden_pending"`
	HiddenMates   []models.User `json:"hidden_mates"`
}

// IsMutual reports whether both users have each other in turebenRequests.
func IsMutual(a, b models.User) bool {
	return slices.Contains(a.TurebenRequests, b.Email) && slices.Contains(b.TurebenRequests, a.Email)
}

// PendingReceived reports whether other asked me and I have not asked back.
func PendingReceived(me, other models.User) bool {
	return slices.Contains(other.TurebenRequests, me.Email) && !slices.Contains(me.TurebenRequests, other.Email)
}

// Classify sorts every other user into the connection lists of me. A user that
// me has hidden appears only in a hidden list.
func Classify(me models.User, users []models.User) Connections {
	var c Connections
	for _, u := range users {
		if u.Email == me.Email {
			continue
		}
		mutual := IsMutual(me, u)
		sent := slices.Contains(me.TurebenRequests, u.Email)
		received := PendingReceived(me, u)
		if !mutual && !sent && !received {
			continue
		}

		if slices.Contains(me.HiddenRequests, u.Email) || slices.Contains(me.HiddenMates, u.Email) {
			if mutual {
				c.HiddenMates = append(c.HiddenMates, u)
			} else {
				c.HiddenPending = append(c.HiddenPending, u)
			}
			continue
		}

		switch {
		case mutual:
			c.Mutual = append(c.Mutual, u)
		case sent:
			c.Sent = append(c.Sent, u)
		default:
			c.Received = append(c.Received, u)
		}
	}
	return c
}
