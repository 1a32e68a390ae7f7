package config

import (
	"fmt"
	"strings"
	"time"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg plus hard errors and
// soft warnings.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Simulator.Cities = trimList(out.Simulator.Cities)
	out.Executor.Mode = strings.ToLower(strings.TrimSpace(out.Executor.Mode))
	out.Executor.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(out.Executor.Remote.BaseURL), "/")
	out.History.Backend = strings.ToLower(strings.TrimSpace(out.History.Backend))
	out.Log.Level = strings.ToLower(strings.TrimSpace(out.Log.Level))

	errs, err := problems(out)
	if err != nil {
		res.addErr("%v", err)
	}
	for _, e := range errs {
		res.addErr("%s", e)
	}

	// ---- Warnings ----

	if out.Session.DelayMs < 500 {
		res.addWarn("session.delay_ms is very low (%d) and may get the collector rate limited.", out.Session.DelayMs)
	}
	if out.Session.TimeoutMs > 0 && out.Session.TimeoutMs < out.Session.DelayMs {
		res.addWarn("session.timeout_ms (%d) is below delay_ms (%d); most requests will time out.",
			out.Session.TimeoutMs, out.Session.DelayMs)
	}
	if out.Executor.Mode == "remote" && out.Executor.Remote.RequestTimeout == 0 {
		res.addWarn("executor.remote.request_timeout is 0; commands to the agent never time out.")
	}
	if r := out.Executor.Remote.Reconnect; r.MaxAttempts > 20 && r.MaxDelay >= time.Minute {
		res.addWarn("reconnect may keep retrying for over %s before giving up.", time.Duration(r.MaxAttempts)*r.MaxDelay)
	}
	if out.Simulator.FailureRate > 0.5 {
		res.addWarn("simulator.failure_rate %.2f means most requests fail.", out.Simulator.FailureRate)
	}

	return out, res
}
