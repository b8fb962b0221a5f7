package pipeline

import "time"

// AlertDeduplicator suppresses repeats of the same violation within a
// cooldown window. One instance exists per camera, owned by that camera's
// worker. The signature is the sorted set of missing classes: a different
// signature is a new kind of violation and is never suppressed by an old
// one's cooldown.
type AlertDeduplicator struct {
	cooldown time.Duration
	lastSig  string
	emitted  map[string]time.Time
}

func NewAlertDeduplicator(cooldown time.Duration) *AlertDeduplicator {
	return &AlertDeduplicator{
		cooldown: cooldown,
		emitted:  map[string]time.Time{},
	}
}

func (d *AlertDeduplicator) ShouldEmit(signature string, now time.Time) bool {
	if signature != d.lastSig {
		// The violation changed shape; prior cooldowns no longer apply.
		d.emitted = map[string]time.Time{}
	}

	if last, ok := d.emitted[signature]; ok && now.Sub(last) < d.cooldown {
		return false
	}

	d.emitted[signature] = now
	d.lastSig = signature
	return true
}
