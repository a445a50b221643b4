// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 RecipeBox Contributors

// Package postgres implements the auth stores on PostgreSQL. Uniqueness,
// single-use reset codes and reset request serialization are all enforced
// by single statements so concurrent requests need no application locking.
package postgres
