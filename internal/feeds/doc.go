// Package feeds collects source material for drafting posts: items from RSS
// and Atom feeds, and recent posts from watched accounts on the Bluesky
// Jetstream firehose.
package feeds
