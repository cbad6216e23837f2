package bank

type decisionRequest struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	MerchantID  string `json:"merchant_id"`
}

type decisionResponse struct {
	Approved       bool   `json:"approved"`
	AuthCode       string `json:"auth_code,omitempty"`
	DeclineCode    string `json:"decline_code,omitempty"`
	DeclineMessage string `json:"decline_message,omitempty"`
}

type errorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}
