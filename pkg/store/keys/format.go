package keys

const (
	// notation dictionary for key formats:
	// u   = user
	// c   = conversation
	// mb  = membership
	// m   = message
	// r   = reaction
	// e   = emoji
	// p   = presence
	// ty  = typing
	// a   = ai artifact
	// t   = artifact type
	// idx = index
	// All keys are lowercase; segments are separated by ":"
	// <...> = variable segment

	// primary records
	UserKey         = "u:%s"                   // u:<user_id>
	ConversationKey = "c:%s"                   // c:<conv_id>
	MembershipKey   = "mb:c:%s:u:%s"           // mb:c:<conv_id>:u:<user_id>
	MessageKey      = "m:%s"                   // m:<msg_id>
	ReactionKey     = "r:m:%s:u:%s:e:%s"       // r:m:<msg_id>:u:<user_id>:e:<emoji>
	PresenceKey     = "p:u:%s"                 // p:u:<user_id>
	TypingKey       = "ty:c:%s:u:%s"           // ty:c:<conv_id>:u:<user_id>
	ArtifactKey     = "a:c:%s:u:%s:t:%s:%s:%s" // a:c:<conv_id>:u:<user_id>:t:<type>:<ts>:<seq>
	JobKey          = "job:%s"                 // job:<seq>

	// indexes
	UserExternalIndex     = "idx:u:ext:%s"     // idx:u:ext:<external_id> -> user_id
	UserConversationIndex = "idx:u:%s:c:%s"    // idx:u:<user_id>:c:<conv_id>
	ConversationMsgIndex  = "idx:c:%s:m:%s:%s" // idx:c:<conv_id>:m:<ts>:<seq> -> <msg_id>|<sender_id>

	// prefixes
	MembershipPrefix           = "mb:c:%s:u:"
	ReactionPrefix             = "r:m:%s:"
	TypingPrefix               = "ty:c:%s:u:"
	TypingAllPrefix            = "ty:"
	ArtifactTypePrefix         = "a:c:%s:u:%s:t:%s:"
	ArtifactUserPrefix         = "a:c:%s:u:%s:"
	ArtifactConversationPrefix = "a:c:%s:"
	ArtifactAllPrefix          = "a:"
	JobPrefix                  = "job:"
	UserPrefix                 = "u:"
	UserConversationPrefix     = "idx:u:%s:c:"
	ConversationMsgPrefix      = "idx:c:%s:m:"

	// padding widths (fixed for lexicographic ordering)
	TSPadWidth  = 20 // %020d
	SeqPadWidth = 10 // %010d

	// index value separator
	IndexValueSep = "|"

	// system keys
	SystemVersionKey = "system:version"
	SchemaVersion    = "1"
)
