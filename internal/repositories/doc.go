// Package repositories implements SQLite persistence for the app's private local state.
//
// Key Implementations:
//   - [StateRepository] : key/value app state (sealed push token, issue time, committed segments, user topic, last sync time, encryption key, install device id)
//   - [PreferencesRepository] : per-type notification toggles and the quiet-hours range
//
// Multi-key writes run in one transaction so a token and its issue time are stored as a single write.
// [StateRepository.EnsureKey] uses INSERT OR IGNORE and reads the key back, so concurrent creators converge on the first key written.
package repositories
