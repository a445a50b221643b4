// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package auth provides account registration, login, bearer sessions and
// the password reset flow for RecipeBox.
//
// # Domain Types
//
// Domain types (Account, Session, ResetChallenge) should be created
// using their respective constructors:
//   - NewAccount - builds an Account from validated RegisterInput and a digest
//   - NewSession - builds a Session from an issued Token
//   - NewResetChallenge - builds a ResetChallenge with a validated expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// Store implementations receive pre-validated types from these constructors.
//
// # Services
//
// Orchestrator is the entry point for every caller-facing flow. It composes
// the stores, the PasswordHasher, the TokenIssuer and ResetCodeService.
// Collaborators are passed in Deps; nothing here opens connections.
//
// # Errors
//
// Every returned error wraps one of the Err* sentinels or a
// DuplicateFieldError and carries the matching oops code.
package auth
