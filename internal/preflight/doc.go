// Package preflight provides readiness checks for the collaborators
// and filesystem paths that leaflens depends on.
//
// These checks run in two contexts:
//   - The daemon runtime calls RunAll at startup and logs every failure
//     as a warning. Failures never block startup; scans depending on a
//     missing collaborator fail at the stage that needs it.
//   - The CLI "leaflens preflight" command renders the same results.
//
// Each remote check is gated by its config field -- unset collaborators
// are skipped.
package preflight
