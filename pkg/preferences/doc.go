// Package preferences resolves whether a notification may be delivered to a
// user on a given channel.
//
// A Preference is a fixed record per user: channel flags per category and
// notification type, a master switch per channel, quiet hours and per-channel
// daily limits. A channel passes the gates when
//
//   - both the (category, type, channel) flag and the channel's global flag are on,
//   - the user is outside quiet hours, or the event is critical, or the channel is in-app,
//   - a daily quota slot could be reserved for the channel.
//
// Quota counters reset lazily at the next midnight in the user's timezone.
// Reservation is an atomic increment-and-check performed by the Store
// (MongoStore uses conditional $inc updates) or by RedisCounter.
package preferences
