package main

import (
	"time"

	"fleet-sentinel/internal/schema"
)

func envelope(kind, actorID, sourceID string, ts time.Time, ctx map[string]any) schema.Envelope {
	return schema.Envelope{
		Kind:      kind,
		ActorRole: string(schema.RoleUser),
		ActorID:   actorID,
		SourceID:  sourceID,
		Timestamp: ts,
		Context:   ctx,
	}
}

// scenario returns the demonstration traffic. With stock rule parameters it
// raises exactly one alert per category:
//
//	ip1       3 failed logins, below the burst threshold
//	ip2       6 failed logins 5s apart
//	dev1      3 toggles
//	dev2      11 toggles 1s apart
//	powerDev  50 readings of 100 followed by 200
//	thermo1   6 temperature changes 3s apart
//	ipX       a USER opening the security camera
func scenario(start time.Time) []schema.Envelope {
	var out []schema.Envelope
	at := func(d time.Duration) time.Time { return start.Add(d) }

	for i := 0; i < 3; i++ {
		out = append(out, envelope("login_attempt", "u1", "ip1", start, map[string]any{"success": false}))
	}
	for i := 0; i < 6; i++ {
		out = append(out, envelope("login_attempt", "u1", "ip2", at(time.Duration(i)*5*time.Second), map[string]any{"success": false}))
	}
	for i := 0; i < 3; i++ {
		out = append(out, envelope("toggle_device", "u2", "dev1", at(time.Duration(i)*time.Second), nil))
	}
	for i := 0; i < 11; i++ {
		out = append(out, envelope("toggle_device", "u2", "dev2", at(time.Duration(i)*time.Second), nil))
	}
	for i := 0; i < 50; i++ {
		out = append(out, envelope("power_reading", "u3", "powerDev", start, map[string]any{"value": 100.0}))
	}
	out = append(out, envelope("power_reading", "u3", "powerDev", start, map[string]any{"value": 200.0}))
	for i := 0; i < 6; i++ {
		out = append(out, envelope("temperature_change", "u4", "thermo1", at(time.Duration(i)*3*time.Second), nil))
	}
	out = append(out, envelope("unauthorized_access", "u5", "ipX", start, map[string]any{"resource": "security_camera"}))

	return out
}
