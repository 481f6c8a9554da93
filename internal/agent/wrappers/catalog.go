package wrappers

// DefaultWrappers returns the full known wrapper set in registration order.
// Claude sits first so preferred-agent selection picks it by default.
func DefaultWrappers() []Wrapper {
	return []Wrapper{
		NewClaude(),
		NewAider(),
		NewCodex(),
		NewGemini(),
		NewAmp(),
		NewCursor(),
		NewSWEAgent(),
		NewQwen(),
		NewOpenCode(),
		NewGoose(),
		NewContinue(),
		NewOpenHands(),
	}
}
