package domain

import (
	"time"
)

type TicketStatus string

const (
	TicketMinted   TicketStatus = "minted"
	TicketVerified TicketStatus = "verified"
	TicketUsed     TicketStatus = "used"
)

// rank orders statuses so transitions can be checked for monotonicity.
func (s TicketStatus) rank() int {
	switch s {
	case TicketMinted:
		return 1
	case TicketVerified:
		return 2
	case TicketUsed:
		return 3
	default:
		return 0
	}
}

func (s TicketStatus) Valid() bool { return s.rank() > 0 }

// Before reports whether s strictly precedes other in the ticket lifecycle.
func (s TicketStatus) Before(other TicketStatus) bool {
	return s.rank() < other.rank()
}

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleOrganizer Role = "organizer"
	RoleMinter    Role = "minter"
	RoleOperator  Role = "operator"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleOrganizer, RoleMinter, RoleOperator:
		return true
	}
	return false
}

type Event struct {
	ID           int64     `json:"id"`
	Organizer    string    `json:"organizer"`
	Name         string    `json:"name"`
	StartsAt     time.Time `json:"starts_at"`
	Venue        string    `json:"venue"`
	Price        int64     `json:"price"`
	Capacity     int64     `json:"capacity"`
	Sold         int64     `json:"sold"`
	EnforceSeats bool      `json:"enforce_seats"`
	Closed       bool      `json:"closed"`
	CreatedAt    time.Time `json:"created_at"`
}

func (e Event) Remaining() int64 {
	return e.Capacity - e.Sold
}

type NewEvent struct {
	Name         string
	StartsAt     time.Time
	Venue        string
	Price        int64
	Capacity     int64
	EnforceSeats bool
}

type Ticket struct {
	ID          int64        `json:"id"`
	EventID     int64        `json:"event_id"`
	Owner       string       `json:"owner"`
	Seat        string       `json:"seat"`
	MetadataURI string       `json:"metadata_uri,omitempty"`
	Status      TicketStatus `json:"status"`
	MintedAt    time.Time    `json:"minted_at"`
	VerifiedAt  *time.Time   `json:"verified_at,omitempty"`
	UsedAt      *time.Time   `json:"used_at,omitempty"`
}

// Grant gives Account a role within the scope of Organizer. EventID narrows
// an operator grant to a single event; nil means every event of the organizer.
type Grant struct {
	Account   string `json:"account" yaml:"account"`
	Role      Role   `json:"role" yaml:"role"`
	Organizer string `json:"organizer" yaml:"organizer"`
	EventID   *int64 `json:"event_id,omitempty" yaml:"event_id,omitempty"`
}

type Signer struct {
	Organizer string    `json:"organizer" yaml:"organizer"`
	PublicKey string    `json:"public_key" yaml:"public_key"`
	AddedAt   time.Time `json:"added_at" yaml:"-"`
}

// Bootstrap is the initial access control state applied at startup.
type Bootstrap struct {
	Admins     []string `yaml:"admins"`
	Organizers []string `yaml:"organizers"`
	Grants     []Grant  `yaml:"grants"`
	Signers    []Signer `yaml:"signers"`
}

type ValidityReport struct {
	Exists bool         `json:"exists"`
	Valid  bool         `json:"valid"`
	Status TicketStatus `json:"status"`
	Ticket Ticket       `json:"ticket"`
	Event  Event        `json:"event"`
	Owner  string       `json:"owner"`
}

type VerificationAction string

const (
	ActionCheck  VerificationAction = "check"
	ActionVerify VerificationAction = "verify"
	ActionUse    VerificationAction = "use"
	ActionScan   VerificationAction = "scan"
)

// VerificationRecord is one entry of the verification log kept per ticket.
type VerificationRecord struct {
	ID       int64              `json:"id"`
	TicketID int64              `json:"ticket_id"`
	Action   VerificationAction `json:"action"`
	Caller   string             `json:"caller,omitempty"`
	Outcome  string             `json:"outcome"`
	At       time.Time          `json:"at"`
}

// SoldDrift reports an event whose sold counter disagrees with its tickets.
type SoldDrift struct {
	EventID int64 `json:"event_id"`
	Sold    int64 `json:"sold"`
	Tickets int64 `json:"tickets"`
}

type OutboxMessage struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	MessageEventCreated   = "event.created"
	MessageEventClosed    = "event.closed"
	MessageTicketMinted   = "ticket.minted"
	MessageTicketVerified = "ticket.verified"
	MessageTicketUsed     = "ticket.used"
)
