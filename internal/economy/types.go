package economy

import "time"

// Reason names an expected, non-fatal rejection. Rejected operations never
// mutate state.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonCooldownActive    Reason = "cooldown_active"
	ReasonInsufficientFunds Reason = "insufficient_funds"
	ReasonItemNotFound      Reason = "item_not_found"
	ReasonSelfTransfer      Reason = "self_transfer"
	ReasonInvalidAmount     Reason = "invalid_amount"
	ReasonRecipientNotFound Reason = "recipient_not_found"
)

type EarnResult struct {
	Granted           bool          `json:"granted"`
	Reason            Reason        `json:"reason,omitempty"`
	Reward            Amount        `json:"reward_minor"`
	NewBalance        Amount        `json:"new_balance_minor"`
	CooldownRemaining time.Duration `json:"cooldown_remaining_ns"`
}

type PurchaseResult struct {
	OK         bool      `json:"ok"`
	Reason     Reason    `json:"reason,omitempty"`
	Item       *ShopItem `json:"item,omitempty"`
	Balance    Amount    `json:"balance_minor"`
	NewBalance Amount    `json:"new_balance_minor"`
}

type TransferResult struct {
	OK               bool   `json:"ok"`
	Reason           Reason `json:"reason,omitempty"`
	Amount           Amount `json:"amount_minor"`
	SenderBalance    Amount `json:"sender_balance_minor"`
	RecipientBalance Amount `json:"recipient_balance_minor"`
}

// Config carries the fixed economy constants.
type Config struct {
	Cooldown time.Duration
	Reward   Amount
}

func DefaultConfig() Config {
	return Config{
		Cooldown: DefaultCooldown,
		Reward:   DefaultReward,
	}
}
