// Package auth protects the gateway's admin API.
//
// # Credentials
//
// Admin endpoints (/api/conversations, /api/proactive, /api/deliveries) accept:
//
//   - API key: sent as X-Api-Key or as a bearer token, compared against
//     auth.api_key or the bcrypt hash in auth.api_key_hash.
//
//   - Operator JWT: an HS256 token signed with auth.jwt_secret, issued by
//     "teams-gateway" and carrying the operator name in "sub". Mint one with
//     `teams-gateway token --subject <name>`.
//
// When none of these is configured the admin API is open, which suits local
// development with the Bot Framework Emulator.
//
// # Diagnostics
//
// InspectToken decodes a Bot Framework access token without verifying it so
// operators can check its audience and app id.
package auth
