// Package retention purges point values older than a configured age.
//
// A Purger runs once at start and then on every interval tick. Each run
// deletes values older than now minus MaxAge across all points and, when
// orphan cleanup is enabled, values and annotations whose point is no
// longer registered. Failures are logged and retried on the next tick.
package retention
