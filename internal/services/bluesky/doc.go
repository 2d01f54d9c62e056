// Package bluesky is a minimal AT Protocol client that publishes posts and
// images to a Bluesky PDS with an app password.
//
// Post identifiers are record AT-URIs. Replies need strong references to both
// the parent and the thread root, so the client remembers the references of
// posts it created and looks up unknown parents with getRecord.
package bluesky
