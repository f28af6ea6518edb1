// Package internal contains helper utilities that are intentionally private
// to the identity module, currently secure random generation for recovery
// passwords.
//
// # What this package must NOT do
//
//   - Export types that appear in the public identity API.
//   - Be imported by any package outside this module.
package internal
