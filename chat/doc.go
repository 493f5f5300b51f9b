// Package chat connects the bot to Twitch IRC.
//
// Client wraps go-twitch-irc: it joins the configured channel, turns channel
// messages and whispers into Message values for a single handler, and sends
// chat lines. Outgoing lines should go through dispatch.Chat so they respect
// the chat rate limit; Client.Say itself sends immediately.
//
// Credentials: the IRC client requires a bot username and an OAuth token with
// chat:read/chat:edit scopes. If TWITCH_OAUTH_TOKEN is not provided,
// ResolveToken falls back to the stored token for provider "twitch" in the
// oauth_tokens table.
package chat
