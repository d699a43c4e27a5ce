// Package cache provides a generic, thread-safe LRU cache.
//
// Eviction callbacks run after the cache lock is released, so a callback may
// do slow cleanup (closing a broadcaster, a connection) without stalling
// other callers.
//
//	c := cache.NewLRUCache[string, *Session](1000)
//	c.SetEvictCallback(func(id string, s *Session) { s.Close() })
//	s := c.GetOrPut(id, func() *Session { return newSession(id) })
package cache
