/*
Package client talks to the school platform HTTP API.

Every request carries the current session's token as a bearer header. A 401
on anything but the login endpoint means the token is no longer accepted:
the session's auth keys are cleared and the navigator is sent back to "/".

Calls go through a rate limiter and a circuit breaker, and the transport
retries connection errors and 5xx responses.

	api := client.New(client.Config{BaseURL: cfg.API.BaseURL},
		client.WithSession(env.Manager()),
		client.WithNavigator(nav),
		client.WithLogger(logger))

	res, err := api.Login(ctx, email, password)
	if res.RequiresPasswordChange() {
		...
	}
*/
package client
