// ABOUTME: Conversation references: the handle needed to reopen a conversation later
// ABOUTME: Extracted from inbound activities and applied to outbound proactive ones

package activity

// ConversationReference holds enough of an activity to address the same
// conversation again without new inbound contact.
type ConversationReference struct {
	ActivityID   string               `json:"activityId,omitempty"`
	User         *ChannelAccount      `json:"user,omitempty"`
	Bot          *ChannelAccount      `json:"bot,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	Locale       string               `json:"locale,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
}

// GetConversationReference derives a reference from an inbound activity.
// The sender becomes the user and the recipient becomes the bot. Missing
// sub-records are left nil rather than treated as errors.
func GetConversationReference(a *Activity) ConversationReference {
	if a == nil {
		return ConversationReference{}
	}
	ref := ConversationReference{
		ActivityID: a.ID,
		ChannelID:  a.ChannelID,
		Locale:     a.Locale,
		ServiceURL: a.ServiceURL,
	}
	if a.From != nil {
		u := *a.From
		ref.User = &u
	}
	if a.Recipient != nil {
		b := *a.Recipient
		ref.Bot = &b
	}
	if a.Conversation != nil {
		c := *a.Conversation
		ref.Conversation = &c
	}
	return ref
}

// Clone returns a deep copy so the caller cannot alias the original's accounts.
func (r ConversationReference) Clone() ConversationReference {
	out := r
	if r.User != nil {
		u := *r.User
		out.User = &u
	}
	if r.Bot != nil {
		b := *r.Bot
		out.Bot = &b
	}
	if r.Conversation != nil {
		c := *r.Conversation
		out.Conversation = &c
	}
	return out
}

// ConversationID returns the referenced conversation id, or "".
func (r ConversationReference) ConversationID() string {
	if r.Conversation == nil {
		return ""
	}
	return r.Conversation.ID
}

// UserID returns the channel-specific user id, or "".
func (r ConversationReference) UserID() string {
	if r.User == nil {
		return ""
	}
	return r.User.ID
}

// AADObjectID returns the user's directory object id, or "".
func (r ConversationReference) AADObjectID() string {
	if r.User == nil {
		return ""
	}
	return r.User.AADObjectID
}

// ApplyConversationReference addresses an outbound activity to the referenced
// conversation: the bot speaks, the user receives.
func ApplyConversationReference(a *Activity, ref ConversationReference) {
	ref = ref.Clone()
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	a.From = ref.Bot
	a.Recipient = ref.User
	if a.Locale == "" {
		a.Locale = ref.Locale
	}
}
