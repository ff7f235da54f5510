package model

// SymbolInfo is broker instrument metadata from the bridge's symbol table.
type SymbolInfo struct {
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Category     string  `json:"category"` // forex, metals, indices, crypto, other
	Digits       int     `json:"digits"`
	Point        float64 `json:"point"`
	ContractSize float64 `json:"trade_contract_size"`
}
