package services

// TokenizeCommand carries raw card input across the tokenize boundary.
// It is the only place full card data appears; none of it is logged.
type TokenizeCommand struct {
	Number         string
	ExpMonth       int
	ExpYear        int
	CVV            string
	CardholderName string
	Reusable       bool
}

type AuthorizeCommand struct {
	TokenID    string `json:"token_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	MerchantID string `json:"merchant_id"`
}

type CaptureCommand struct {
	AuthorizationID string `json:"authorization_id"`
	// Amount zero means capture the full remaining authorized amount.
	Amount int64 `json:"amount"`
}

type VoidCommand struct {
	AuthorizationID string `json:"authorization_id"`
}

type RefundCommand struct {
	AuthorizationID string `json:"authorization_id"`
	// Amount zero means refund the full remaining captured amount.
	Amount int64 `json:"amount"`
}
