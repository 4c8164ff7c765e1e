// Package connector is a small client for the Bot Framework connector REST
// API, limited to what the gateway sends: replies to inbound activities and
// proactive activities into remembered conversations.
//
// Authentication uses the app registration's client credentials through
// golang.org/x/oauth2; tokens are cached and refreshed by the token source.
package connector
