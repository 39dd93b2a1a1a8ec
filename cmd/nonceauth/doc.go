// Command nonceauth serves the token lifecycle over HTTP.
//
// Subcommands:
//
//	serve    run the HTTP API with /metrics and /healthz
//	migrate  apply the bundled SQL migrations (sqlite, postgres)
//	hash     hash a passkey with the configured algorithm, for seeding
//
// Configuration comes from a YAML file (--config), then NONCEAUTH_ variables
// where "__" separates sections (NONCEAUTH_AUTH__JWT__ACCESS_SECRET), then
// flags.
package main
