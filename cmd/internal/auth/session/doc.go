// Package session implements the single-session model.
//
// Every account has one active-credential slot in the account store. Starting a
// session signs a new credential and overwrites the slot, which silently
// supersedes whatever credential was there before. Ending a session clears the
// slot. A presented credential is valid only while it verifies and is
// byte-identical to the slot content, so validation always re-reads the store.
//
// Transport integration lives in the gate and api packages.
package session
