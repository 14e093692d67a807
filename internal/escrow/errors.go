package escrow

import "errors"

// Class groups errors by how a caller may react to them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassExistence: the referenced record is missing or already present.
	ClassExistence
	// ClassAuthorization: the caller may not perform the operation.
	ClassAuthorization
	// ClassTiming: the operation may succeed once time advances.
	ClassTiming
	// ClassValue: the arguments or the balances rule the operation out.
	ClassValue
)

func (c Class) String() string {
	switch c {
	case ClassExistence:
		return "existence"
	case ClassAuthorization:
		return "authorization"
	case ClassTiming:
		return "timing"
	case ClassValue:
		return "value"
	default:
		return "unknown"
	}
}

type classified struct {
	class Class
	msg   string
}

func (e *classified) Error() string { return e.msg }

func newError(c Class, msg string) error { return &classified{class: c, msg: msg} }

var (
	ErrNotFound                       = newError(ClassExistence, "not found")
	ErrAlreadyExists                  = newError(ClassExistence, "already exists")
	ErrCreatorAlreadyOwnsOrganization = newError(ClassExistence, "creator already owns an organization")
	ErrNotOrganizationCreator         = newError(ClassAuthorization, "caller is not the organization creator")
	ErrNotAdministrator               = newError(ClassAuthorization, "caller is not an administrator")
	ErrUnauthenticated                = newError(ClassAuthorization, "caller identity is required")
	ErrCampaignOngoing                = newError(ClassTiming, "campaign is ongoing")
	ErrCannotWithdrawOutOfGracePeriod = newError(ClassTiming, "cannot withdraw out of the grace period")
	ErrZeroAmount                     = newError(ClassValue, "amount must be greater than zero")
	ErrNoDonationsMade                = newError(ClassValue, "no donations made")
	ErrOverflow                       = newError(ClassValue, "amount overflows the value range")
	ErrInvalidGracePeriod             = newError(ClassValue, "grace period must be a non-negative number of seconds")
	ErrInvalidName                    = newError(ClassValue, "name must be non-blank and at most 128 bytes")
	ErrDirectTransferRejected         = newError(ClassValue, "direct value transfers are not accepted")
	ErrInsufficientEscrow             = newError(ClassValue, "escrow holds less than the requested payout")
)

// ClassOf returns the class of the first classified error in err's chain.
func ClassOf(err error) Class {
	var ce *classified
	if errors.As(err, &ce) {
		return ce.class
	}
	return ClassUnknown
}

// Sentinels lists every error value the escrow exposes, keyed by message.
// Remote clients use it to map transport errors back to sentinels.
func Sentinels() map[string]error {
	all := []error{
		ErrNotFound, ErrAlreadyExists, ErrCreatorAlreadyOwnsOrganization,
		ErrNotOrganizationCreator, ErrNotAdministrator, ErrUnauthenticated,
		ErrCampaignOngoing, ErrCannotWithdrawOutOfGracePeriod,
		ErrZeroAmount, ErrNoDonationsMade, ErrOverflow, ErrInvalidGracePeriod,
		ErrInvalidName, ErrDirectTransferRejected, ErrInsufficientEscrow,
	}
	out := make(map[string]error, len(all))
	for _, e := range all {
		out[e.Error()] = e
	}
	return out
}
