package economy

import "errors"

var (
	// ErrPlayerNotFound accompanies the benign default results (0, false, empty) of a missing record.
	ErrPlayerNotFound = errors.New("economy: player not found")
	ErrInvalidPlayer  = errors.New("economy: player id is required")
	ErrInvalidCost    = errors.New("economy: cost must not be negative")
	ErrInvalidAmount  = errors.New("economy: amount must not be negative")
	ErrInvalidWallet  = errors.New("economy: wallet address is required")
)

// Reason says why an operation did not mutate state.
type Reason string

const (
	ReasonNotFound          Reason = "not_found"
	ReasonAlreadyExists     Reason = "already_exists"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonInsufficientAsset Reason = "insufficient_asset"
	ReasonUnknownAsset      Reason = "unknown_asset"
	ReasonLevelMismatch     Reason = "level_mismatch"
	ReasonEnergyFull        Reason = "energy_full"
	ReasonWalletLinked      Reason = "wallet_already_linked"
	ReasonWalletInUse       Reason = "wallet_in_use"
)

// Outcome is the tagged result of a mutating operation.
// Success is the boolean the client sees; Applied reports whether state changed.
type Outcome struct {
	Success bool   `json:"success"`
	Applied bool   `json:"applied"`
	Reason  Reason `json:"reason,omitempty"`
}

func applied() Outcome { return Outcome{Success: true, Applied: true} }

// skipped succeeds without touching state (already full, already linked...).
func skipped(r Reason) Outcome { return Outcome{Success: true, Reason: r} }

func rejected(r Reason) Outcome { return Outcome{Reason: r} }
