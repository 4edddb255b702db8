// Package redisstore keeps propagation plans in Redis and provides a
// distributed mutation lock, so several API replicas can share one plan
// queue and serialize their commits.
package redisstore
