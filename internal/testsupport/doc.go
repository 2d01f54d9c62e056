// Package testsupport holds fixtures shared by package tests: a config
// builder rooted in t.TempDir, an in-memory versioned store, a scripted fake
// platform, and post builders.
package testsupport
