package models

import "strings"

// DeliveryApps are the canonical spellings of apps users commonly list.
// Names outside this list are kept as typed, with whitespace collapsed.
var DeliveryApps = []string{"Swiggy", "Zomato", "Magicpin", "EatSure", "Uber Eats", "ONDC", "Zepto Cafe", "Dunzo"}

var deliveryAppIndex = func() map[string]string {
	m := make(map[string]string, len(DeliveryApps))
	for _, app := range DeliveryApps {
		m[deliveryAppKey(app)] = app
	}
	return m
}()

// deliveryAppKey ignores case and spacing, so "uber eats" and "UberEats"
// share a key.
func deliveryAppKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), ""))
}

// CanonicalDeliveryApp returns the stored form of a delivery app name, or ""
// for a blank name.
func CanonicalDeliveryApp(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	if canonical, ok := deliveryAppIndex[deliveryAppKey(name)]; ok {
		return canonical
	}
	return name
}

// SameDeliveryApp compares two names the way storage does.
func SameDeliveryApp(a, b string) bool {
	return strings.EqualFold(CanonicalDeliveryApp(a), CanonicalDeliveryApp(b))
}

// NormalizeDeliveryApps canonicalises names and drops blanks and repeats
// that differ only in case, keeping the first occurrence's position.
func NormalizeDeliveryApps(apps []string) []string {
	out := make([]string, 0, len(apps))
	seen := make(map[string]struct{}, len(apps))
	for _, a := range apps {
		a = CanonicalDeliveryApp(a)
		if a == "" {
			continue
		}
		key := strings.ToLower(a)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, a)
	}
	return out
}
