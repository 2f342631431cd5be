// Package tokenstore holds the single bearer token the API client authenticates with.
//
// Store is the contract the rest of the module depends on: Get never fails (backend
// errors read as "no token"), Set and Clear report write failures. The backing
// mechanism is chosen at composition time:
//   - File: Local filesystem storage with atomic writes and secure permissions
//   - Keyring: OS-native credential storage (macOS Keychain, Windows Credential Manager, etc.)
//   - Env: Read-only environment variable access (static tokens, e.g. in CI)
//   - Memory: Process memory only, for sessions that must not outlive the process
package tokenstore
