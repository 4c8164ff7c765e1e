// Package activity defines the subset of the Bot Framework schema the gateway
// reads and writes: activities, channel and conversation accounts,
// attachments, and conversation references.
//
// Only fields the gateway uses are modeled. Unknown JSON fields on inbound
// activities are ignored, so vendor additions never break deserialization.
//
// A ConversationReference is the capability handle used for proactive
// messaging: GetConversationReference extracts it from an inbound activity,
// and ApplyConversationReference addresses a new outbound activity with it.
package activity
