package dto

import (
	"time"

	"webcash-wallet/internal/core/domain"
)

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Password string `json:"password" binding:"required,max=1024"`
}

// LoginResponse is the response body for successful login.
type LoginResponse struct {
	Token  string `json:"token"`
	Expiry int64  `json:"expiry"` // Unix timestamp
}

// TermsRequest carries the exact terms text being accepted or checked.
type TermsRequest struct {
	Text string `json:"text" binding:"required,max=65536"`
}

// TermsStatusResponse reports acceptance of one terms text.
type TermsStatusResponse struct {
	Key      string `json:"key"`
	Accepted bool   `json:"accepted"`
}

// TermsSummaryResponse reports whether any terms were ever accepted.
type TermsSummaryResponse struct {
	AnyAccepted bool `json:"any_accepted"`
}

// InsertRequest is the request body for inserting a received token.
type InsertRequest struct {
	Token string `json:"token" binding:"required,webcash_secret"`
	Mine  bool   `json:"mine"`
}

// InsertResponse is returned after a token was inserted.
type InsertResponse struct {
	OutputID int64  `json:"output_id"`
	Public   string `json:"public"`
}

// OutputResponse describes one tracked output. It never carries a secret.
type OutputResponse struct {
	ID         int64  `json:"id"`
	CreatedAt  string `json:"created_at"`
	Commitment string `json:"commitment"`
	Amount     string `json:"amount"` // webcash decimal
	Units      int64  `json:"units"`
	Spent      bool   `json:"spent"`
	Public     string `json:"public"`
}

// OutputListResponse wraps a page of outputs.
type OutputListResponse struct {
	Items  []OutputResponse `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// OutputSecretResponse discloses the spendable token of an output.
type OutputSecretResponse struct {
	ID    int64  `json:"id"`
	Token string `json:"token"`
}

// BalanceResponse is the response for the balance query.
type BalanceResponse struct {
	Amount string `json:"amount"`
	Units  int64  `json:"units"`
}

// ReplaceOutput requests one new output.
type ReplaceOutput struct {
	Amount string `json:"amount" binding:"required,webcash_amount"`
	Mine   bool   `json:"mine"`
	Sweep  bool   `json:"sweep"`
}

// ReplaceRequest spends Inputs (output ids) into Outputs.
type ReplaceRequest struct {
	Inputs  []int64         `json:"inputs" binding:"required,min=1,max=1000,dive,gt=0"`
	Outputs []ReplaceOutput `json:"outputs" binding:"required,min=1,max=1000,dive"`
}

// ReplacedOutputResponse describes one minted output. Token is only present
// on the first response; idempotent replays carry public data only.
type ReplacedOutputResponse struct {
	OutputID int64  `json:"output_id"`
	Amount   string `json:"amount"`
	Mine     bool   `json:"mine"`
	Public   string `json:"public"`
	Token    string `json:"token,omitempty"`
}

// ReplaceResponse is the response body for a replace.
type ReplaceResponse struct {
	Outputs []ReplacedOutputResponse `json:"outputs"`
}

// Public returns a copy without any secret tokens.
func (r ReplaceResponse) Public() ReplaceResponse {
	out := ReplaceResponse{Outputs: make([]ReplacedOutputResponse, len(r.Outputs))}
	for i, o := range r.Outputs {
		o.Token = ""
		out.Outputs[i] = o
	}
	return out
}

// NewOutputResponse maps a domain output.
func NewOutputResponse(o domain.WalletOutput) OutputResponse {
	return OutputResponse{
		ID:         o.ID,
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339),
		Commitment: o.Commitment.Hex(),
		Amount:     domain.FormatWebcash(o.Amount),
		Units:      int64(o.Amount),
		Spent:      o.Spent,
		Public:     o.Public().String(),
	}
}

// NewBalanceResponse maps an amount.
func NewBalanceResponse(a domain.Amount) BalanceResponse {
	return BalanceResponse{Amount: domain.FormatWebcash(a), Units: int64(a)}
}
