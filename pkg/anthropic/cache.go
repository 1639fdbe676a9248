package anthropic

// CacheTTLShort is the default ephemeral cache lifetime.
const CacheTTLShort = "5m"

// BuildCachedSystemBlocks returns the instructions as a plain system block
// followed by the shared document with a cache breakpoint. Requests that
// differ only in their user message reuse the cached document.
func BuildCachedSystemBlocks(instructions, document string) []SystemBlock {
	var blocks []SystemBlock
	if instructions != "" {
		blocks = append(blocks, SystemBlock{Text: instructions})
	}
	return append(blocks, SystemBlock{
		Text:         document,
		CacheControl: &CacheControl{TTL: CacheTTLShort},
	})
}
