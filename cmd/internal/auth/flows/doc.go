// Package flows implements account registration, login and logout on top of the
// account store and the session authority, plus the admin listing and deletion
// operations.
//
// Every failure is returned as *Error carrying one Kind, so transports can map
// outcomes without inspecting causes.
package flows
