// Package exact holds the shared machinery for the "exact" payment scheme:
// the registry of networks payments can settle on, the stablecoin contract
// that executes transferWithAuthorization on each of them, and the
// expansion of a route price into full payment requirements.
package exact

// Token describes the settlement asset on a single network.  Name and
// Version must match exactly what the token contract reports, since both are
// bound into the EIP-712 domain separator.
type Token struct {
	ChainID  int64
	Asset    string
	Name     string
	Version  string
	Symbol   string
	Decimals int
}

var networks = map[string]Token{
	"base": {
		ChainID:  8453,
		Asset:    "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		Name:     "USD Coin",
		Version:  "2",
		Symbol:   "USDC",
		Decimals: 6,
	},
	"base-sepolia": {
		ChainID:  84532,
		Asset:    "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
		Name:     "USDC",
		Version:  "2",
		Symbol:   "USDC",
		Decimals: 6,
	},
	"avalanche-fuji": {
		ChainID:  43113,
		Asset:    "0x5425890298aed601595a70AB815c96711a31Bc65",
		Name:     "USD Coin",
		Version:  "2",
		Symbol:   "USDC",
		Decimals: 6,
	},
	"avalanche": {
		ChainID:  43114,
		Asset:    "0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E",
		Name:     "USDC",
		Version:  "2",
		Symbol:   "USDC",
		Decimals: 6,
	},
}

// Network looks up the settlement token for a named network.
func Network(name string) (Token, bool) {
	tok, ok := networks[name]

	return tok, ok
}

// ChainID maps a network name to its EVM chain ID.
func ChainID(name string) (int64, bool) {
	tok, ok := networks[name]

	return tok.ChainID, ok
}

// Networks lists the known network names.
func Networks() []string {
	out := make([]string, 0, len(networks))
	for name := range networks {
		out = append(out, name)
	}

	return out
}
