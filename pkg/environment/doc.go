// Package environment names the deployment stage of a process and carries it
// through contexts.
//
//	env, err := environment.Parse(os.Getenv("APP_ENV"))
//	ctx = environment.WithContext(ctx, env)
//	router.Use(environment.Middleware(env))
package environment
