package interlink

// Profile is the authenticated account, as returned by /auth/current-user.
type Profile struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	LoginID   string `json:"loginId"`
	CreatedAt string `json:"createdAt"`
}

// Balances is the per-tier token snapshot from /token/get-token.
type Balances struct {
	Silver          int64 `json:"interlinkSilverTokenAmount"`
	Gold            int64 `json:"interlinkGoldTokenAmount"`
	Diamond         int64 `json:"interlinkDiamondTokenAmount"`
	LastClaimTime   int64 `json:"lastClaimTime"` // epoch millis, 0 if never
	FirstLoginClaim bool  `json:"isFirstLoginTokenClaim"`
}

// Eligibility is the /token/check-is-claimable answer.
// NextFrame is the next eligible window in epoch millis; 0 means unknown.
type Eligibility struct {
	Claimable bool  `json:"isClaimable"`
	NextFrame int64 `json:"nextFrame"`
}

// ClaimResult is the /token/claim-airdrop answer. The server reports success
// as a bare boolean in the data field.
type ClaimResult struct {
	Done bool
}
