// Package cache provides a memory-bounded LRU cache for derived
// projection imagery, plus an optional sqlite-backed store for
// persisting projections across sessions.
//
// ProjectionCache holds two independently ordered maps: primary
// projections and lower-priority pyramid levels. Both share a single
// byte budget. When the budget is exceeded, pyramid entries are always
// evicted before primary entries, since pyramid levels are cheaper to
// reconstruct than base projections.
//
// All ProjectionCache operations are total: a miss is a boolean, never
// an error, and an insert larger than the whole budget is accepted and
// then immediately evicted rather than rejected.
package cache
