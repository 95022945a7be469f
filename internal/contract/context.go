package contract

// ExecutionContext bundles the active contract with its identity and
// content hash. It is created once at bootstrap and passed explicitly to
// every stage; nothing mutates it and there is no ambient fallback.
type ExecutionContext struct {
	ContractID   string
	ContractHash string
	Contract     *Contract
}

// NewExecutionContext builds the immutable context for a validated contract.
func NewExecutionContext(c *Contract) ExecutionContext {
	return ExecutionContext{
		ContractID:   c.ID,
		ContractHash: c.Hash,
		Contract:     c,
	}
}
