package events

// Category is the first level of preference classification.
type Category string

const (
	CategorySubscription Category = "subscription"
	CategoryContent      Category = "content"
	CategoryEngagement   Category = "engagement"
	CategorySystem       Category = "system"
	CategoryPremium      Category = "premium"
)

// NotificationType is the second level of preference classification.
type NotificationType string

const (
	TypeLifecycle       NotificationType = "lifecycle"
	TypeReminders       NotificationType = "reminders"
	TypeBilling         NotificationType = "billing"
	TypeNewInsights     NotificationType = "newInsights"
	TypePremiumInsights NotificationType = "premiumInsights"
	TypeDigest          NotificationType = "digest"
	TypeRequests        NotificationType = "requests"
	TypeComments        NotificationType = "comments"
	TypeLikes           NotificationType = "likes"
	TypeFollows         NotificationType = "follows"
	TypeAnnouncements   NotificationType = "announcements"
	TypeMaintenance     NotificationType = "maintenance"
	TypeAdminAlerts     NotificationType = "adminAlerts"
	TypeAccess          NotificationType = "access"
)

// Strategy selects how recipients of an event are found.
type Strategy int

const (
	// StrategyDirect targets payload["user_id"].
	StrategyDirect Strategy = iota
	// StrategyInterested targets users who opted into the event's category and type.
	StrategyInterested
	// StrategyRoles targets active users holding one of Definition.Roles.
	StrategyRoles
)

func (s Strategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyInterested:
		return "interested"
	case StrategyRoles:
		return "roles"
	}
	return "unknown"
}

// Definition describes defaults and classification for one event type.
type Definition struct {
	Type             Type
	Priority         Priority
	Channels         []Channel
	Category         Category
	NotificationType NotificationType
	Strategy         Strategy
	Roles            []string
	// Premium marks content events that are only sent to premium-interested users.
	Premium bool
}

var (
	emailPushInApp    = []Channel{ChannelEmail, ChannelPush, ChannelInApp}
	emailInApp        = []Channel{ChannelEmail, ChannelInApp}
	pushInApp         = []Channel{ChannelPush, ChannelInApp}
	emailPushSMSInApp = []Channel{ChannelEmail, ChannelPush, ChannelSMS, ChannelInApp}
	inAppOnly         = []Channel{ChannelInApp}
	adminRoles        = []string{"admin", "superadmin"}
)

var definitions = map[Type]Definition{
	SubscriptionGranted:         {Priority: PriorityHigh, Channels: emailPushInApp, Category: CategorySubscription, NotificationType: TypeLifecycle},
	SubscriptionRenewed:         {Priority: PriorityMedium, Channels: emailInApp, Category: CategorySubscription, NotificationType: TypeLifecycle},
	SubscriptionCancelled:       {Priority: PriorityHigh, Channels: emailInApp, Category: CategorySubscription, NotificationType: TypeLifecycle},
	SubscriptionExpiringSoon:    {Priority: PriorityHigh, Channels: emailPushInApp, Category: CategorySubscription, NotificationType: TypeReminders},
	SubscriptionExpiringToday:   {Priority: PriorityCritical, Channels: emailPushSMSInApp, Category: CategorySubscription, NotificationType: TypeReminders},
	SubscriptionExpired:         {Priority: PriorityHigh, Channels: emailPushInApp, Category: CategorySubscription, NotificationType: TypeLifecycle},
	SubscriptionExpiredReminder: {Priority: PriorityMedium, Channels: emailInApp, Category: CategorySubscription, NotificationType: TypeReminders},
	SubscriptionPaymentFailed:   {Priority: PriorityCritical, Channels: emailPushInApp, Category: CategorySubscription, NotificationType: TypeBilling},

	InsightPublished:        {Priority: PriorityMedium, Channels: pushInApp, Category: CategoryContent, NotificationType: TypeNewInsights, Strategy: StrategyInterested},
	InsightPremiumPublished: {Priority: PriorityMedium, Channels: pushInApp, Category: CategoryContent, NotificationType: TypePremiumInsights, Strategy: StrategyInterested, Premium: true},

	InsightRequestSubmitted: {Priority: PriorityHigh, Channels: emailInApp, Category: CategorySystem, NotificationType: TypeAdminAlerts, Strategy: StrategyRoles, Roles: adminRoles},
	InsightRequestAnswered:  {Priority: PriorityMedium, Channels: emailPushInApp, Category: CategoryContent, NotificationType: TypeRequests},

	EngagementComment: {Priority: PriorityLow, Channels: pushInApp, Category: CategoryEngagement, NotificationType: TypeComments},
	EngagementLike:    {Priority: PriorityLow, Channels: inAppOnly, Category: CategoryEngagement, NotificationType: TypeLikes},
	EngagementFollow:  {Priority: PriorityLow, Channels: pushInApp, Category: CategoryEngagement, NotificationType: TypeFollows},

	PremiumAccessGranted: {Priority: PriorityHigh, Channels: emailPushInApp, Category: CategoryPremium, NotificationType: TypeAccess},
	PremiumAccessRevoked: {Priority: PriorityHigh, Channels: emailInApp, Category: CategoryPremium, NotificationType: TypeAccess},

	DigestWeekly: {Priority: PriorityLow, Channels: []Channel{ChannelEmail}, Category: CategoryContent, NotificationType: TypeDigest},

	SystemAnnouncement: {Priority: PriorityMedium, Channels: emailInApp, Category: CategorySystem, NotificationType: TypeAnnouncements},
	SystemMaintenance:  {Priority: PriorityHigh, Channels: emailPushInApp, Category: CategorySystem, NotificationType: TypeMaintenance},
}

// Lookup returns the definition of t. The boolean is false for types outside
// the taxonomy.
func Lookup(t Type) (Definition, bool) {
	def, ok := definitions[t]
	if !ok {
		return Definition{}, false
	}
	def.Type = t
	def.Channels = append([]Channel(nil), def.Channels...)
	return def, true
}

// Known reports whether t belongs to the taxonomy.
func Known(t Type) bool {
	_, ok := definitions[t]
	return ok
}

// AllTypes returns every type of the taxonomy.
func AllTypes() []Type {
	return []Type{
		SubscriptionGranted, SubscriptionRenewed, SubscriptionCancelled,
		SubscriptionExpiringSoon, SubscriptionExpiringToday, SubscriptionExpired,
		SubscriptionExpiredReminder, SubscriptionPaymentFailed,
		InsightPublished, InsightPremiumPublished,
		InsightRequestSubmitted, InsightRequestAnswered,
		EngagementComment, EngagementLike, EngagementFollow,
		PremiumAccessGranted, PremiumAccessRevoked,
		DigestWeekly,
		SystemAnnouncement, SystemMaintenance,
	}
}

// fallback is used to build events of unknown types.
func fallback(t Type) Definition {
	return Definition{Type: t, Priority: PriorityMedium, Channels: append([]Channel(nil), inAppOnly...)}
}
