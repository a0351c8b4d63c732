// Package auth provides authentication and authorisation for the fleet
// dashboard.
//
// It implements a three-tier role model (staff → manager → admin) with:
//   - bcrypt password hashing
//   - HS256 JWT access tokens validated by signature alone
//   - a static role-permission mapping (no database lookup)
//   - first-run admin seeding
package auth
