// Package redisstore shares authorization attempts and refresh locks
// between instances through Redis.
package redisstore
