package shared

import (
	"context"
	"strconv"
	"strings"
)

// SessionUserNameKey holds the display name of the signed-in user.
const SessionUserNameKey = "user_name"

// Actor identifies who performed a mutation. It is used for audit stamping only.
type Actor struct {
	ID   int64
	Name string
}

// SystemActor stamps changes made by background processing.
var SystemActor = Actor{Name: "system"}

// DisplayName never returns an empty string.
func (a Actor) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if a.ID > 0 {
		return "user #" + strconv.FormatInt(a.ID, 10)
	}
	return SystemActor.Name
}

// ActorFromContext derives the actor from the request session.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	sess := SessionFromContext(ctx)
	if sess == nil {
		return Actor{}, false
	}
	id, err := strconv.ParseInt(strings.TrimSpace(sess.User()), 10, 64)
	if err != nil || id <= 0 {
		return Actor{}, false
	}
	return Actor{ID: id, Name: sess.Get(SessionUserNameKey)}, true
}
