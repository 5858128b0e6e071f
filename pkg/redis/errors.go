package redis

import "errors"

var (
	ErrEmptyConnectionURL           = errors.New("redis connection URL is not configured")
	ErrFailedToParseRedisConnString = errors.New("failed to parse redis connection URL")
	ErrRedisNotReady                = errors.New("redis did not answer ping within the retry budget")
	ErrHealthcheckFailed            = errors.New("redis ping failed")
)
