// Package auth manages the identity and session lifecycle: local
// password-backed identities, Google-federated identities, email
// verification through one-time passcodes, and the three signed token
// classes a client exchanges during login.
//
// The package enforces two structural invariants. An email belongs to at
// most one identity across both identity tables, and an identity has at
// most one open session at any time; opening a session closes the previous
// one in the same transaction.
package auth
