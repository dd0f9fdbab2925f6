package domain

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

type Capability string

const (
	CapPurchase      Capability = "purchase"
	CapRedeem        Capability = "redeem"
	CapViewAnyTicket Capability = "view_any_ticket"
)

// Identity is the authenticated caller as supplied by the auth layer. The
// checkout core trusts it without re-deriving it. Capability checks happen
// once, at the orchestrator boundary, instead of ad hoc per handler.
type Identity struct {
	UserID string
	Email  string
	Role   Role
}

func (i Identity) Can(c Capability) bool {
	switch c {
	case CapPurchase:
		return i.UserID != ""
	case CapRedeem:
		return i.Role == RoleOrganizer || i.Role == RoleAdmin
	case CapViewAnyTicket:
		return i.Role == RoleAdmin
	default:
		return false
	}
}
