package raydium

import "encoding/json"

// DTOs raw de la API de Raydium. Solo se usan dentro de este paquete.
// price y createdAt se guardan crudos: la API no garantiza el tipo y una
// entrada rara no debe tirar abajo el listado entero.

// pairDTO es un elemento de GET /v2/main/pairs.
type pairDTO struct {
	Name      string          `json:"name"`
	AmmID     string          `json:"ammId"`
	BaseMint  string          `json:"baseMint"`
	QuoteMint string          `json:"quoteMint"`
	LpMint    string          `json:"lpMint"`
	Price     json.RawMessage `json:"price"`
	Liquidity json.RawMessage `json:"liquidity"`
	CreatedAt json.RawMessage `json:"createdAt"`
}
