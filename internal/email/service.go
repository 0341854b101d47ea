package email

import (
	"context"
)

// Service sends operational mail. Patient-facing delivery lives outside this
// system; the only direct recipients here are configured operations inboxes.
type Service interface {
	SendScheduleConflictAlert(ctx context.Context, to string, subject string, content string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}
