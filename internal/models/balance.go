package models

import "time"

type Balance struct {
	Asset    string  `json:"asset"`
	Free     float64 `json:"free"`
	Locked   float64 `json:"locked"`
	Borrowed float64 `json:"borrowed"`
}

func (b Balance) Total() float64 { return b.Free + b.Locked + b.Borrowed }

// AccountBalance — снепшот балансов одного аккаунта, приходит пушами
// от коннектора.
type AccountBalance struct {
	Account  string             `json:"account"`
	Balances map[string]Balance `json:"balances"`
	Updated  time.Time          `json:"updated"`
}

// BalanceEvent — пуш баланса от коннектора.
type BalanceEvent struct {
	Account string  `json:"account"`
	Balance Balance `json:"balance"`
}

func (a *AccountBalance) Apply(b Balance) {
	if a.Balances == nil {
		a.Balances = make(map[string]Balance)
	}
	a.Balances[b.Asset] = b
}
