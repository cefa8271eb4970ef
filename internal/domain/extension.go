package domain

import "time"

// ExtensionDecision says whether an accepted bid pushes the end time out.
type ExtensionDecision struct {
	Extend     bool
	NewEndTime time.Time
}

// DecideExtension applies the anti-sniping rule: when auto-extension is on
// and the bid lands within the trailing trigger window of the deadline, the
// deadline moves to now plus the auction's extension span.
//
// There is no cap on how often this fires; every qualifying late bid
// re-extends.
func DecideExtension(a *Auction, now time.Time, triggerWindow time.Duration) ExtensionDecision {
	if !a.AutoExtend {
		return ExtensionDecision{}
	}
	remaining := a.EndTime.Sub(now)
	if remaining <= 0 || remaining > triggerWindow {
		return ExtensionDecision{}
	}
	return ExtensionDecision{
		Extend:     true,
		NewEndTime: now.Add(time.Duration(a.ExtensionMinutes) * time.Minute),
	}
}
