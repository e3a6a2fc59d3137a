package core

import "context"

// Delivery is a fully resolved outbound message handed to the transport.
type Delivery struct {
	Lead     Lead
	Action   ScheduledAction
	Template Template
	Subject  string
	Body     string
	Channel  string
}

// Deliverer is the external transport collaborator. The orchestrator does
// not guarantee transport success; it guarantees every due delivery is
// attempted and its outcome recorded.
type Deliverer interface {
	Deliver(ctx context.Context, d Delivery) error
}

// Personalizer tailors a template's subject and body to a specific lead
// before delivery.
type Personalizer interface {
	Personalize(ctx context.Context, tmpl Template, lead Lead) (subject, body string, err error)
}
