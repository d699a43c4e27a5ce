// Package config loads environment-driven configuration structs.
//
// Every notifykit package that talks to infrastructure declares its own
// Config struct with `env` and `envDefault` tags (mongo.Config, queue.Config,
// dispatch.Config, ...). Load fills such a struct from the process
// environment, reading a .env file once if present, and caches the result per
// type and prefix so repeated calls are cheap.
//
//	var cfg mongo.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
// Use WithPrefix to load the same struct type for several instances, e.g. a
// second Redis connection under "QUOTA_".
package config
