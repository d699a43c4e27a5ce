package preferences

import (
	"slices"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

// ChannelFlags holds one switch per channel.
type ChannelFlags struct {
	Email   bool `bson:"email" json:"email"`
	Push    bool `bson:"push" json:"push"`
	SMS     bool `bson:"sms" json:"sms"`
	InApp   bool `bson:"in_app" json:"inApp"`
	Webhook bool `bson:"webhook" json:"webhook"`
}

// Get returns the flag for ch. Unknown channels are off.
func (f ChannelFlags) Get(ch events.Channel) bool {
	switch ch {
	case events.ChannelEmail:
		return f.Email
	case events.ChannelPush:
		return f.Push
	case events.ChannelSMS:
		return f.SMS
	case events.ChannelInApp:
		return f.InApp
	case events.ChannelWebhook:
		return f.Webhook
	}
	return false
}

// Set changes the flag for ch.
func (f *ChannelFlags) Set(ch events.Channel, on bool) error {
	switch ch {
	case events.ChannelEmail:
		f.Email = on
	case events.ChannelPush:
		f.Push = on
	case events.ChannelSMS:
		f.SMS = on
	case events.ChannelInApp:
		f.InApp = on
	case events.ChannelWebhook:
		f.Webhook = on
	default:
		return ErrUnknownChannel
	}
	return nil
}

// Any reports whether at least one channel is on.
func (f ChannelFlags) Any() bool {
	return f.Email || f.Push || f.SMS || f.InApp || f.Webhook
}

type SubscriptionPrefs struct {
	Lifecycle ChannelFlags `bson:"lifecycle" json:"lifecycle"`
	Reminders ChannelFlags `bson:"reminders" json:"reminders"`
	Billing   ChannelFlags `bson:"billing" json:"billing"`
}

type ContentPrefs struct {
	NewInsights     ChannelFlags `bson:"new_insights" json:"newInsights"`
	PremiumInsights ChannelFlags `bson:"premium_insights" json:"premiumInsights"`
	Digest          ChannelFlags `bson:"digest" json:"digest"`
	Requests        ChannelFlags `bson:"requests" json:"requests"`
	// Interests narrows content broadcasts to these categories. Empty means all.
	Interests []string `bson:"interests,omitempty" json:"interests,omitempty"`
}

// Interested reports whether category matches the user's interests.
func (c ContentPrefs) Interested(category string) bool {
	return category == "" || len(c.Interests) == 0 || slices.Contains(c.Interests, category)
}

type EngagementPrefs struct {
	Comments ChannelFlags `bson:"comments" json:"comments"`
	Likes    ChannelFlags `bson:"likes" json:"likes"`
	Follows  ChannelFlags `bson:"follows" json:"follows"`
}

type SystemPrefs struct {
	Announcements ChannelFlags `bson:"announcements" json:"announcements"`
	Maintenance   ChannelFlags `bson:"maintenance" json:"maintenance"`
	AdminAlerts   ChannelFlags `bson:"admin_alerts" json:"adminAlerts"`
}

type PremiumPrefs struct {
	Access ChannelFlags `bson:"access" json:"access"`
}

// Categories is the two-level category → notification type table.
type Categories struct {
	Subscription SubscriptionPrefs `bson:"subscription" json:"subscription"`
	Content      ContentPrefs      `bson:"content" json:"content"`
	Engagement   EngagementPrefs   `bson:"engagement" json:"engagement"`
	System       SystemPrefs       `bson:"system" json:"system"`
	Premium      PremiumPrefs      `bson:"premium" json:"premium"`
}

// Flags returns the channel flags of (category, notification type).
func (c *Categories) Flags(cat events.Category, nt events.NotificationType) (*ChannelFlags, bool) {
	switch cat {
	case events.CategorySubscription:
		switch nt {
		case events.TypeLifecycle:
			return &c.Subscription.Lifecycle, true
		case events.TypeReminders:
			return &c.Subscription.Reminders, true
		case events.TypeBilling:
			return &c.Subscription.Billing, true
		}
	case events.CategoryContent:
		switch nt {
		case events.TypeNewInsights:
			return &c.Content.NewInsights, true
		case events.TypePremiumInsights:
			return &c.Content.PremiumInsights, true
		case events.TypeDigest:
			return &c.Content.Digest, true
		case events.TypeRequests:
			return &c.Content.Requests, true
		}
	case events.CategoryEngagement:
		switch nt {
		case events.TypeComments:
			return &c.Engagement.Comments, true
		case events.TypeLikes:
			return &c.Engagement.Likes, true
		case events.TypeFollows:
			return &c.Engagement.Follows, true
		}
	case events.CategorySystem:
		switch nt {
		case events.TypeAnnouncements:
			return &c.System.Announcements, true
		case events.TypeMaintenance:
			return &c.System.Maintenance, true
		case events.TypeAdminAlerts:
			return &c.System.AdminAlerts, true
		}
	case events.CategoryPremium:
		if nt == events.TypeAccess {
			return &c.Premium.Access, true
		}
	}
	return nil, false
}

// Global holds the master switch per channel.
type Global struct {
	EmailEnabled   bool `bson:"email_enabled" json:"emailEnabled"`
	PushEnabled    bool `bson:"push_enabled" json:"pushEnabled"`
	SMSEnabled     bool `bson:"sms_enabled" json:"smsEnabled"`
	InAppEnabled   bool `bson:"in_app_enabled" json:"inAppEnabled"`
	WebhookEnabled bool `bson:"webhook_enabled" json:"webhookEnabled"`
}

// Enabled returns the master switch for ch.
func (g Global) Enabled(ch events.Channel) bool {
	return g.flags().Get(ch)
}

func (g Global) flags() ChannelFlags {
	return ChannelFlags{
		Email:   g.EmailEnabled,
		Push:    g.PushEnabled,
		SMS:     g.SMSEnabled,
		InApp:   g.InAppEnabled,
		Webhook: g.WebhookEnabled,
	}
}

// QuietHours is a window of local hours, [StartHour, EndHour), during which
// non-critical notifications are held back. Start > End wraps past midnight.
type QuietHours struct {
	Enabled   bool   `bson:"enabled" json:"enabled"`
	StartHour int    `bson:"start_hour" json:"startHour"`
	EndHour   int    `bson:"end_hour" json:"endHour"`
	Timezone  string `bson:"timezone" json:"timezone"`
}

// DailyLimit caps deliveries per local day. Max <= 0 means unlimited.
type DailyLimit struct {
	Max       int       `bson:"max" json:"max"`
	SentToday int       `bson:"sent_today" json:"sentToday"`
	ResetAt   time.Time `bson:"reset_at" json:"resetAt"`
}

// Unlimited reports whether the limit is disabled.
func (l DailyLimit) Unlimited() bool { return l.Max <= 0 }

type DailyLimits struct {
	Email   DailyLimit `bson:"email" json:"email"`
	Push    DailyLimit `bson:"push" json:"push"`
	SMS     DailyLimit `bson:"sms" json:"sms"`
	InApp   DailyLimit `bson:"in_app" json:"inApp"`
	Webhook DailyLimit `bson:"webhook" json:"webhook"`
}

// For returns the limit for ch.
func (l *DailyLimits) For(ch events.Channel) (*DailyLimit, bool) {
	switch ch {
	case events.ChannelEmail:
		return &l.Email, true
	case events.ChannelPush:
		return &l.Push, true
	case events.ChannelSMS:
		return &l.SMS, true
	case events.ChannelInApp:
		return &l.InApp, true
	case events.ChannelWebhook:
		return &l.Webhook, true
	}
	return nil, false
}

// Preference is the per-user preference document.
type Preference struct {
	UserID      string      `bson:"_id" json:"userId"`
	Categories  Categories  `bson:"categories" json:"categories"`
	Global      Global      `bson:"global" json:"global"`
	QuietHours  QuietHours  `bson:"quiet_hours" json:"quietHours"`
	DailyLimits DailyLimits `bson:"daily_limits" json:"dailyLimits"`
	CreatedAt   time.Time   `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `bson:"updated_at" json:"updatedAt"`
}

// Timezone returns the user's timezone name, defaulting to UTC.
func (p Preference) Timezone() string {
	if p.QuietHours.Timezone == "" {
		return "UTC"
	}
	return p.QuietHours.Timezone
}

// Clone returns a deep copy.
func (p Preference) Clone() Preference {
	p.Categories.Content.Interests = slices.Clone(p.Categories.Content.Interests)
	return p
}

// Defaults returns the preference document created for a new user: every
// channel enabled globally except SMS and webhook, email/push/in-app enabled
// for every notification type, quiet hours 22–7 UTC disabled, and limits of
// 10 emails, 20 pushes, 5 SMS and 50 webhooks per day.
func Defaults(userID string, now time.Time) Preference {
	on := ChannelFlags{Email: true, Push: true, InApp: true}
	reset := NextReset(now, "UTC")
	limit := func(n int) DailyLimit { return DailyLimit{Max: n, ResetAt: reset} }

	return Preference{
		UserID: userID,
		Categories: Categories{
			Subscription: SubscriptionPrefs{Lifecycle: on, Reminders: on, Billing: on},
			Content:      ContentPrefs{NewInsights: on, PremiumInsights: on, Digest: on, Requests: on},
			Engagement:   EngagementPrefs{Comments: on, Likes: on, Follows: on},
			System:       SystemPrefs{Announcements: on, Maintenance: on, AdminAlerts: on},
			Premium:      PremiumPrefs{Access: on},
		},
		Global: Global{
			EmailEnabled: true,
			PushEnabled:  true,
			InAppEnabled: true,
		},
		QuietHours: QuietHours{StartHour: 22, EndHour: 7, Timezone: "UTC"},
		DailyLimits: DailyLimits{
			Email:   limit(10),
			Push:    limit(20),
			SMS:     limit(5),
			InApp:   limit(0),
			Webhook: limit(50),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}
