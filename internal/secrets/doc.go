// Package secrets resolves config values stored in AWS SSM Parameter Store.
//
// A value written as "ssm:/teams-gateway/app-password" is replaced at startup
// with the decrypted parameter. Supported fields: bot.app_id,
// bot.app_password, auth.api_key, auth.api_key_hash, auth.jwt_secret and
// tailscale.auth_key.
package secrets
