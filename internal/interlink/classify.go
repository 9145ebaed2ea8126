package interlink

import "net/http"

// Kind classifies a remote call result. The scheduler derives its backoff and
// termination decisions from this, never from raw status codes.
type Kind int

const (
	// KindOK: 2xx with a decodable payload.
	KindOK Kind = iota
	// KindAuthInvalid: HTTP 401. Fatal for a background loop.
	KindAuthInvalid
	// KindRateLimited: HTTP 429. Forces extended backoff.
	KindRateLimited
	// KindClaimTooEarly: HTTP 400 with the server's TOKEN_CLAIM_TOO_EARLY message.
	// Not an error; the claim window simply hasn't opened.
	KindClaimTooEarly
	// KindTransient: timeout, connection failure, or malformed body. Retryable soon.
	KindTransient
	// KindUnknownResponse: a well-formed response we can't interpret.
	KindUnknownResponse
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindRateLimited:
		return "rate_limited"
	case KindClaimTooEarly:
		return "claim_too_early"
	case KindTransient:
		return "transient"
	default:
		return "unknown_response"
	}
}

// Outcome carries the classification plus the human-readable server message and
// the HTTP status (0 when the request never produced a response).
type Outcome struct {
	Kind    Kind
	Message string
	Status  int
}

func (o Outcome) OK() bool { return o.Kind == KindOK }

// tooEarlyMessage is the exact server-side marker for a premature claim.
const tooEarlyMessage = "TOKEN_CLAIM_TOO_EARLY"

// classifyStatus maps a non-2xx status plus its server message to a Kind.
func classifyStatus(status int, serverMessage string) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthInvalid
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusBadRequest && serverMessage == tooEarlyMessage:
		return KindClaimTooEarly
	default:
		return KindUnknownResponse
	}
}
