package render

import (
	"fmt"

	"github.com/dmitrymomot/notifykit/pkg/events"
)

type template func(v vars) Content

var templates = map[events.Type]template{
	events.SubscriptionGranted: func(v vars) Content {
		return Content{
			Title: fmt.Sprintf("Welcome to %s", v.tier()),
			Body:  fmt.Sprintf("Hi %s, your %s subscription is active until %s.", v.name(), v.tier(), v.date(events.KeyEndDate)),
			Rich:  Rich{ActionURL: v.url("/insights"), ActionText: "Explore insights"},
		}
	},
	events.SubscriptionRenewed: func(v vars) Content {
		return Content{
			Title: "Subscription renewed",
			Body:  fmt.Sprintf("Your %s subscription was renewed and now runs until %s.", v.tier(), v.date(events.KeyEndDate)),
			Rich:  Rich{ActionURL: v.url("/account/subscription"), ActionText: "View subscription"},
		}
	},
	events.SubscriptionCancelled: func(v vars) Content {
		return Content{
			Title: "Subscription cancelled",
			Body:  fmt.Sprintf("Your %s subscription was cancelled. You keep access until %s.", v.tier(), v.date(events.KeyEndDate)),
			Rich:  Rich{ActionURL: v.url("/account/subscription"), ActionText: "Reactivate"},
		}
	},
	events.SubscriptionExpiringSoon: func(v vars) Content {
		return Content{
			Title: fmt.Sprintf("Your subscription expires in %s", plural(v.days(), "day")),
			Body:  fmt.Sprintf("Your %s subscription ends on %s. Renew now to keep your access.", v.tier(), v.date(events.KeyEndDate)),
			Rich:  Rich{ActionURL: v.url("/account/subscription/renew"), ActionText: "Renew now"},
		}
	},
	events.SubscriptionExpiringToday: func(v vars) Content {
		return Content{
			Title: "Your subscription expires today",
			Body:  fmt.Sprintf("Your %s access ends today. Renew to avoid losing it.", v.tier()),
			Rich:  Rich{ActionURL: v.url("/account/subscription/renew"), ActionText: "Renew now"},
		}
	},
	events.SubscriptionExpired: func(v vars) Content {
		return Content{
			Title: "Your subscription has expired",
			Body:  fmt.Sprintf("Your %s subscription expired on %s.", v.tier(), v.date(events.KeyEndDate)),
			Rich:  Rich{ActionURL: v.url("/pricing"), ActionText: "Resubscribe"},
		}
	},
	events.SubscriptionExpiredReminder: func(v vars) Content {
		return Content{
			Title: "We miss you",
			Body:  fmt.Sprintf("Your %s subscription ended %s ago. Come back any time.", v.tier(), plural(v.days(), "day")),
			Rich:  Rich{ActionURL: v.url("/pricing"), ActionText: "See plans"},
		}
	},
	events.SubscriptionPaymentFailed: func(v vars) Content {
		return Content{
			Title: "Payment failed",
			Body:  fmt.Sprintf("We could not charge your payment method for the %s plan. Update it to keep your access.", v.tier()),
			Rich:  Rich{ActionURL: v.url("/account/billing"), ActionText: "Update payment method"},
		}
	},

	events.InsightPublished: func(v vars) Content {
		return Content{
			Title: v.str(events.KeyTitle, "New insight published"),
			Body:  fmt.Sprintf("A new insight in %s is ready to read.", v.str(events.KeyCategory, "your feed")),
			Rich:  Rich{ActionURL: v.url("/insights/" + v.str(events.KeyInsightID, "")), ActionText: "Read now"},
		}
	},
	events.InsightPremiumPublished: func(v vars) Content {
		return Content{
			Title: "Premium: " + v.str(events.KeyTitle, "new insight"),
			Body:  fmt.Sprintf("A new premium insight in %s is available.", v.str(events.KeyCategory, "your feed")),
			Rich:  Rich{ActionURL: v.url("/insights/" + v.str(events.KeyInsightID, "")), ActionText: "Read premium insight"},
		}
	},

	events.InsightRequestSubmitted: func(v vars) Content {
		return Content{
			Title: "New insight request",
			Body:  fmt.Sprintf("%s submitted a request: %s", v.str(events.KeyActorName, "A user"), v.str(events.KeyTitle, "untitled")),
			Rich:  Rich{ActionURL: v.url("/admin/requests/" + v.str(events.KeyRequestID, "")), ActionText: "Review request"},
		}
	},
	events.InsightRequestAnswered: func(v vars) Content {
		return Content{
			Title: "Your request was answered",
			Body:  fmt.Sprintf("We published an answer to %q.", v.str(events.KeyTitle, "your request")),
			Rich:  Rich{ActionURL: v.url("/insights/" + v.str(events.KeyInsightID, "")), ActionText: "Read the answer"},
		}
	},

	events.EngagementComment: func(v vars) Content {
		return Content{
			Title: "New comment",
			Body:  fmt.Sprintf("%s commented on %q.", v.str(events.KeyActorName, "Someone"), v.str(events.KeyTitle, "your insight")),
			Rich:  Rich{ActionURL: v.url("/insights/" + v.str(events.KeyInsightID, "") + "#comments"), ActionText: "Reply"},
		}
	},
	events.EngagementLike: func(v vars) Content {
		return Content{
			Title: "New like",
			Body:  fmt.Sprintf("%s liked %q.", v.str(events.KeyActorName, "Someone"), v.str(events.KeyTitle, "your insight")),
			Rich:  Rich{ActionURL: v.url("/insights/" + v.str(events.KeyInsightID, "")), ActionText: "View"},
		}
	},
	events.EngagementFollow: func(v vars) Content {
		return Content{
			Title: "New follower",
			Body:  fmt.Sprintf("%s started following you.", v.str(events.KeyActorName, "Someone")),
			Rich:  Rich{ActionURL: v.url("/profile/followers"), ActionText: "View followers"},
		}
	},

	events.PremiumAccessGranted: func(v vars) Content {
		return Content{
			Title: "Premium access granted",
			Body:  fmt.Sprintf("Hi %s, you now have %s access.", v.name(), v.tier()),
			Rich:  Rich{ActionURL: v.url("/insights?premium=1"), ActionText: "Browse premium insights"},
		}
	},
	events.PremiumAccessRevoked: func(v vars) Content {
		return Content{
			Title: "Premium access removed",
			Body:  fmt.Sprintf("Your %s access has ended.", v.tier()),
			Rich:  Rich{ActionURL: v.url("/pricing"), ActionText: "See plans"},
		}
	},

	events.DigestWeekly: func(v vars) Content {
		return Content{
			Title: "Your weekly digest",
			Body:  digestBody(v),
			Rich:  Rich{ActionURL: v.url("/insights"), ActionText: "Read more"},
		}
	},

	events.SystemAnnouncement: func(v vars) Content {
		return Content{
			Title: v.str(events.KeyTitle, "Announcement"),
			Body:  v.str(events.KeyMessage, "We have news for you."),
			Rich:  Rich{ActionURL: v.url("/announcements"), ActionText: "Learn more"},
		}
	},
	events.SystemMaintenance: func(v vars) Content {
		return Content{
			Title: v.str(events.KeyTitle, "Scheduled maintenance"),
			Body:  v.str(events.KeyMessage, "The service will be briefly unavailable during maintenance."),
			Rich:  Rich{ActionURL: v.url("/status"), ActionText: "Check status"},
		}
	},
}
