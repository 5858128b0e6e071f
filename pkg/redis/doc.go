// Package redis connects the fsmd daemon to Redis, where the Redis
// observer publishes occurrence payloads.
//
// Connect retries the initial ping according to Config, and Healthcheck adapts a
// client to the readiness probe signature used by httpserver.Readiness.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//	if cfg.Enabled() {
//	    client, err := redis.Connect(ctx, cfg)
//	    if err != nil {
//	        return err
//	    }
//	    defer client.Close()
//	}
package redis
