package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Chain
	out.Chain = cfg.Chain
	redact(&out.Chain.RPCURL)
	redact(&out.Chain.SecretPassword)

	// Reference price
	out.RefPrice = cfg.RefPrice
	redact(&out.RefPrice.APIKey)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Notify
	out.Notify = cfg.Notify
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)

	// Server
	out.Server = cfg.Server
	redact(&out.Server.APIKey)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = append([]string(nil), cfg.Notify.Events...)
	}
	if cfg.Server.CORSOrigins != nil {
		out.Server.CORSOrigins = append([]string(nil), cfg.Server.CORSOrigins...)
	}
	if cfg.Tokens.Stables != nil {
		out.Tokens.Stables = append([]string(nil), cfg.Tokens.Stables...)
	}
	if cfg.Tokens.Known != nil {
		out.Tokens.Known = append([]TokenConfig(nil), cfg.Tokens.Known...)
	}
	if cfg.Scan.LadderFractions != nil {
		out.Scan.LadderFractions = append([]float64(nil), cfg.Scan.LadderFractions...)
	}
	if cfg.Scan.FallbackPairs != nil {
		out.Scan.FallbackPairs = append([]string(nil), cfg.Scan.FallbackPairs...)
	}
	if cfg.Venues != nil {
		out.Venues = make(map[string]VenueConfig, len(cfg.Venues))
		for k, v := range cfg.Venues {
			out.Venues[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
