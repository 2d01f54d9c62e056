// Package llm drafts post text with an OpenRouter-compatible chat completion
// API.
//
// Draft turns a feed item into a post; Remix rewrites an existing draft
// following an operator instruction. Both ask the model for a JSON object
// and fit the returned text to the post limit before handing it back, so
// callers always receive text that passes queue validation.
//
// The client retries HTTP 408/429/5xx responses, empty completions, and
// network timeouts with exponential backoff (base 1s, max 10s, 5 attempts
// by default). Retry-After is honoured up to the max delay. Context
// cancellation aborts retries immediately.
package llm
